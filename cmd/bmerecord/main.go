package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubertat/gaskit"
	"github.com/hubertat/gaskit/aistudio"
	"github.com/hubertat/gaskit/drivers"
	"github.com/hubertat/gaskit/stream"
)

var (
	Version string
	Build   string

	port        = flag.String("port", "/dev/ttyUSB0", "serial device the controller is attached to")
	baud        = flag.Int("baud", stream.DefaultBaudRate, "serial baud rate")
	dir         = flag.String("dir", ".", "directory holding the .bmeconfig file, session files are saved there")
	sendProfile = flag.Bool("send", false, "send the heater profile from the config before recording")
	boardId     = flag.Uint("board", 0, "board id for the session header (0 takes the id from the first record)")
)

func main() {
	log.Printf("bmerecord %s started\n", Version)
	flag.Parse()

	configPath, err := aistudio.FindConfig(*dir)
	if err != nil {
		log.Fatalf("config lookup failed: %v\n", err)
	}
	cfg, err := aistudio.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed loading config: %v\n", err)
	}
	log.Printf("using config %s\n", configPath)

	serialPort, err := stream.OpenPort(*port, *baud, stream.DefaultReadTimeout)
	if err != nil {
		log.Fatalf("failed opening serial port: %v\n", err)
	}
	link := stream.NewLink(serialPort)
	defer link.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		signal.Stop(c)
		cancel()
	}()

	if *sendProfile {
		profile, timeBase, err := cfg.SelectHeaterProfile()
		if err != nil {
			log.Fatalf("failed selecting heater profile: %v\n", err)
		}
		if timeBase != int(drivers.MeasurePeriod.Milliseconds()) {
			log.Printf("config time base is %d ms, the controller measures every %v\n", timeBase, drivers.MeasurePeriod)
		}
		log.Printf("sending heater profile (%d steps)...\n", profile.Len())
		err = stream.SendProfile(ctx, link, profile)
		if err != nil {
			log.Fatalf("heater profile handshake failed: %v\n", err)
		}
		log.Println("heater profile confirmed")
	}

	session := aistudio.NewSession(cfg, uint32(*boardId))

	log.Println("recording, stop with ctrl-c to save the session file")
	for {
		line, err := link.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Println("end of measurement session")
			} else {
				log.Printf("serial connection interrupted: %v\n", err)
			}
			break
		}
		if len(line) == 0 {
			continue
		}

		rec, err := gaskit.ParseLine(line)
		if err != nil {
			log.Printf("skipping unparseable line %q: %v\n", line, err)
			continue
		}

		if session.BoardId == 0 {
			session.BoardId = rec.SensorId
		}
		session.Add(rec, time.Now())
	}

	if session.Len() == 0 {
		log.Println("no records received, nothing to save")
		return
	}

	path, err := session.Save(*dir)
	if err != nil {
		log.Fatalf("failed saving session: %v\n", err)
	}
	log.Printf("saved %d records to %s\n", session.Len(), path)
}

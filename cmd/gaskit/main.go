package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"

	"github.com/hubertat/servicemaker"

	"github.com/hubertat/gaskit"
)

var (
	Version string
	Build   string

	config      = flag.String("config", "config.json", "path of the configuration file")
	flagInstall = flag.Bool("install", false, "Install service in os")
	flagPoll    = flag.String("poll", "", "override the measure loop interval, e.g. 500ms")

	gasService = servicemaker.ServiceMaker{
		User:               "gaskit",
		UserGroups:         []string{"gpio", "dialout"},
		ServicePath:        "/etc/systemd/system/gaskit.service",
		ServiceDescription: "gaskit service: gas scanner controller streaming records over serial. github.com/hubertat/gaskit",
		ExecDir:            "/srv/gaskit",
		ExecName:           "gaskit",
	}
)

func main() {
	log.Printf("gaskit %s started\n", Version)
	flag.Parse()

	if *flagInstall {
		err := gasService.InstallService()
		if err != nil {
			panic(err)
		} else {
			log.Println("service installed!")
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gk := &gaskit.GasKit{}
	configFile, err := os.Open(*config)
	if err == nil {
		cBuff, err := io.ReadAll(configFile)
		if err != nil {
			log.Fatalf("failed reading config file: %v\n", err)
		}

		err = json.Unmarshal(cBuff, gk)
		if err != nil {
			log.Fatalf("failed unmarshalling json config: %v", err)
		}
	} else {
		log.Fatalf("can't find/open config file (%s), will terminate. Reason: \n%v\n", *config, err)
	}

	if len(*flagPoll) > 0 {
		gk.PollInterval = *flagPoll
	}

	log.Println("will init gaskit sensors...")
	err = gk.Init(ctx)
	defer gk.Close()
	if err != nil {
		panic(err)
	}

	if len(gk.MqttBroker) > 0 {
		log.Println("will connect mqtt...")
		err = gk.InitMqtt(ctx)
		if err != nil {
			log.Printf("mqtt init returned error: %v\n we will proceed...", err)
		}
	}

	err = gk.InitExports(ctx)
	if err != nil {
		panic(err)
	}

	if len(gk.HttpListen) > 0 {
		log.Printf("starting http status api on %s\n", gk.HttpListen)
		err = gk.StartHttp()
		if err != nil {
			panic(err)
		}
	}

	// stdout may carry the record stream, keep the status block off it
	gk.PrintSensorStatus(os.Stderr)

	if len(gk.HkPin) == 8 {
		log.Println("Starting with HomeKit server")

		go func() {
			runErr := gk.Run(ctx)
			if runErr != nil {
				log.Printf("measure loop ended: %v\n", runErr)
			}
		}()
		log.Fatal(gk.StartHomeKit(context.Background(), Version))
	} else {
		log.Println("HomeKit not configured, disabled")
		err = gk.Run(ctx)
		if err != nil {
			log.Fatal(err)
		}
	}
}

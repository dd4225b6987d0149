package stream

import (
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/hubertat/gaskit/drivers"
)

func TestHandshakeBothRoles(t *testing.T) {
	hostEnd, deviceEnd := net.Pipe()
	defer hostEnd.Close()
	defer deviceEnd.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	profile := drivers.DefaultHeaterProfile()

	type received struct {
		profile drivers.HeaterProfile
		err     error
	}
	done := make(chan received, 1)
	go func() {
		p, err := ReceiveProfile(ctx, NewLink(deviceEnd))
		done <- received{profile: p, err: err}
	}()

	err := SendProfile(ctx, NewLink(hostEnd), profile)
	if err != nil {
		t.Fatalf("send side failed: %v", err)
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("receive side failed: %v", res.err)
	}
	if !res.profile.Equal(profile) {
		t.Errorf("received profile %v, want %v", res.profile, profile)
	}
}

func receiveFrom(t *testing.T, input string) (drivers.HeaterProfile, error) {
	t.Helper()

	link := NewLink(readWriter{Reader: strings.NewReader(input), Writer: io.Discard})
	return ReceiveProfile(context.Background(), link)
}

func TestReceiveProfile(t *testing.T) {
	t.Run("three step profile", func(t *testing.T) {
		profile, err := receiveFrom(t, "3\n320,5\n100,2\n200,10\n")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := drivers.HeaterProfile{
			Temperatures: []uint16{320, 100, 200},
			Multipliers:  []uint16{5, 2, 10},
		}
		if !profile.Equal(want) {
			t.Errorf("got %v want %v", profile, want)
		}
	})

	t.Run("echoes the count and each step with its index", func(t *testing.T) {
		var echoed strings.Builder
		link := NewLink(readWriter{Reader: strings.NewReader("2\n320,5\n100,2\n"), Writer: &echoed})

		_, err := ReceiveProfile(context.Background(), link)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := "2\n320,5,0\n100,2,1\n"
		if echoed.String() != want {
			t.Errorf("got %q want %q", echoed.String(), want)
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		cases := []struct {
			name  string
			input string
		}{
			{"count not a number", "abc\n"},
			{"count zero", "0\n"},
			{"count above limit", "11\n"},
			{"missing multiplier", "1\n320\n"},
			{"wrong separator", "1\n320;5\n"},
			{"temperature not a number", "1\nx,5\n"},
			{"temperature out of range", "1\n500,5\n"},
			{"multiplier zero", "1\n320,0\n"},
			{"multiplier out of range", "1\n320,300\n"},
			{"stream ends early", "2\n320,5\n"},
		}

		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				_, err := receiveFrom(t, c.input)
				if err == nil {
					t.Error("expected error, got nil")
				}
			})
		}
	})
}

func TestSendProfileEchoCheck(t *testing.T) {
	oneStep := drivers.HeaterProfile{Temperatures: []uint16{320}, Multipliers: []uint16{5}}

	t.Run("accepts matching echoes", func(t *testing.T) {
		link := NewLink(readWriter{Reader: strings.NewReader("1\n320,5,0\n"), Writer: io.Discard})

		err := SendProfile(context.Background(), link, oneStep)
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("rejects mismatched count echo", func(t *testing.T) {
		link := NewLink(readWriter{Reader: strings.NewReader("2\n"), Writer: io.Discard})

		err := SendProfile(context.Background(), link, oneStep)
		if err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("rejects mismatched step echo", func(t *testing.T) {
		link := NewLink(readWriter{Reader: strings.NewReader("1\n320,5,1\n"), Writer: io.Discard})

		err := SendProfile(context.Background(), link, oneStep)
		if err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("refuses invalid profile", func(t *testing.T) {
		link := NewLink(readWriter{Reader: strings.NewReader(""), Writer: io.Discard})

		bad := drivers.HeaterProfile{Temperatures: []uint16{320}, Multipliers: []uint16{}}
		err := SendProfile(context.Background(), link, bad)
		if err == nil {
			t.Error("expected error, got nil")
		}
	})
}

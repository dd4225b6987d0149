package stream

import (
	"context"
	"io"
	"strings"
	"testing"
)

type readWriter struct {
	io.Reader
	io.Writer
}

// stutterReader returns a few empty reads before serving data, the way a
// serial port with a read timeout does between arriving bytes.
type stutterReader struct {
	data   []byte
	stalls int
}

func (s *stutterReader) Read(p []byte) (int, error) {
	if s.stalls > 0 {
		s.stalls--
		return 0, nil
	}
	if len(s.data) == 0 {
		return 0, io.EOF
	}

	p[0] = s.data[0]
	s.data = s.data[1:]
	return 1, nil
}

func TestReadLine(t *testing.T) {
	t.Run("strips terminators", func(t *testing.T) {
		link := NewLink(readWriter{Reader: strings.NewReader("320,5\r\n100,2\n")})

		first, err := link.ReadLine(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first != "320,5" {
			t.Errorf("got %q want %q", first, "320,5")
		}

		second, err := link.ReadLine(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second != "100,2" {
			t.Errorf("got %q want %q", second, "100,2")
		}
	})

	t.Run("polls through empty reads", func(t *testing.T) {
		link := NewLink(readWriter{Reader: &stutterReader{data: []byte("ok\n"), stalls: 5}})

		line, err := link.ReadLine(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if line != "ok" {
			t.Errorf("got %q want %q", line, "ok")
		}
	})

	t.Run("propagates end of stream", func(t *testing.T) {
		link := NewLink(readWriter{Reader: strings.NewReader("")})

		_, err := link.ReadLine(context.Background())
		if err != io.EOF {
			t.Errorf("got %v want io.EOF", err)
		}
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		link := NewLink(readWriter{Reader: strings.NewReader("never read\n")})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := link.ReadLine(ctx)
		if err != context.Canceled {
			t.Errorf("got %v want context.Canceled", err)
		}
	})
}

func TestWriteLine(t *testing.T) {
	var sb strings.Builder
	link := NewLink(readWriter{Writer: &sb})

	err := link.WriteLine("0,3151782,1282,25.11,100733.19,41.32,10077.50,0,3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "0,3151782,1282,25.11,100733.19,41.32,10077.50,0,3\n"
	if sb.String() != want {
		t.Errorf("got %q want %q", sb.String(), want)
	}
}

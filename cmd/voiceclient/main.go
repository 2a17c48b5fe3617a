// voiceclient streams a WAV file through the orchestrator as if it were a
// live caller: frames are paced in real time, silence ends the turn, and
// transcripts plus answer events print as they arrive.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"voicechat-orchestrator/internal/client"
	"voicechat-orchestrator/internal/observability/logging"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// 20ms frames at 16kHz 16-bit mono = 640 bytes
const frameSize = 640
const frameIntervalMs = 20

func main() {
	audioFile := flag.String("audio", "testdata/sample-16khz.wav", "Path to WAV file (16kHz 16-bit mono)")
	serverURL := flag.String("server", "ws://localhost:8080", "Orchestrator base URL")
	correlationID := flag.String("correlation", "voiceclient-"+time.Now().Format("150405"), "Correlation ID")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.Format = "console"
	logCfg.Level = "warn"
	logging.Init(logCfg)

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("Failed to open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("Failed to read WAV header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("Not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])

	log.Printf("WAV file: format=%d channels=%d sampleRate=%d bitsPerSample=%d",
		audioFormat, numChannels, sampleRate, bitsPerSample)

	if audioFormat != 1 { // PCM
		log.Fatal("Only PCM format supported")
	}
	if sampleRate != 16000 {
		log.Printf("Warning: Sample rate is %d Hz, expected 16000 Hz", sampleRate)
	}

	cfg := client.DefaultConfig()
	cfg.OnTranscript = func(delta string, final bool) {
		if final {
			fmt.Printf("\n[final] %s\n", delta)
			return
		}
		fmt.Printf("%s ", delta)
	}

	// Buffer incoming messages until the client exists.
	msgs := make(chan []byte, 64)
	link, err := client.Dial(context.Background(), *serverURL, *correlationID, func(data []byte) {
		msgs <- data
	})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	c := client.New(link, client.LogSpeech{}, cfg)
	c.Begin()
	go func() {
		for m := range msgs {
			c.HandleMessage(m)
		}
	}()

	log.Printf("Connected to %s as %s", *serverURL, *correlationID)

	// Stream the file in real time.
	frame := make([]byte, frameSize)
	ticker := time.NewTicker(frameIntervalMs * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		n, err := f.Read(frame)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read audio: %v", err)
		}
		c.PushFrame(frame[:n])
	}

	// Trail with silence so the endpointer closes the last turn.
	silence := make([]byte, frameSize)
	for i := 0; i < 120; i++ {
		<-ticker.C
		c.PushFrame(silence)
		if c.State() == client.StateProcessing {
			break
		}
	}

	c.EndCall()
	deadline := time.Now().Add(30 * time.Second)
	for c.State() != client.StateIdle && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}
	log.Printf("Call finished in state %v", c.State())
}

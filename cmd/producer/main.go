// Package main публикует синтетические сигналы ЭКГ в NATS для проверки обработчика
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	osSignal "os/signal"
	"time"

	"github.com/nats-io/nats.go"

	"arrhythmia-service/internal/ecg"
	"arrhythmia-service/internal/models"
	"arrhythmia-service/internal/stream"
)

func main() {
	var (
		natsURL  = flag.String("nats", "nats://127.0.0.1:4222", "NATS url")
		subject  = flag.String("subject", "ecg.signals", "subject")
		fs       = flag.Int("fs", 360, "sampling rate Hz")
		hr       = flag.Float64("hr", 72, "heart rate bpm")
		seconds  = flag.Float64("seconds", 10, "signal duration per message")
		noise    = flag.Float64("noise", 0.02, "noise amplitude")
		interval = flag.Duration("interval", 2*time.Second, "delay between signals")
		count    = flag.Int("count", 0, "number of signals, 0 for unlimited")
		request  = flag.Bool("request", false, "wait for the verdict as a reply")
	)
	flag.Parse()

	nc, err := stream.Connect(*natsURL, "arrhythmia-producer")
	if err != nil {
		log.Fatal(err)
	}
	defer nc.Drain()

	sim := ecg.NewSimulator(*fs, *hr, *noise)

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	osSignal.Notify(ch, os.Interrupt)

	go func() {
		<-ch
		cancel()
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for sent := 0; *count == 0 || sent < *count; sent++ {
		data, err := json.Marshal(models.PredictionRequest{
			SignalData:   sim.Generate(*seconds),
			SamplingRate: *fs,
			SubjectID:    fmt.Sprintf("sim-%d", sent),
		})
		if err != nil {
			log.Fatal(err)
		}

		if *request {
			reply(nc, *subject, data)
		} else if err := nc.Publish(*subject, data); err != nil {
			log.Printf("publish failed: %v", err)
		}

		select {
		case <-ctx.Done():
			log.Println("producer: stopping")
			return
		case <-ticker.C:
		}
	}
}

func reply(nc *nats.Conn, subject string, data []byte) {
	msg, err := nc.Request(subject, data, 30*time.Second)
	if err != nil {
		log.Printf("request failed: %v", err)
		return
	}
	var m stream.Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		log.Printf("bad reply: %v", err)
		return
	}
	if m.Verdict == nil {
		log.Printf("error (%s): %s", m.Kind, m.Error)
		return
	}
	log.Printf("verdict %s: class=%s risk=%s confidence=%.2f beats=%d",
		m.Verdict.SubjectID, m.Verdict.Class, m.Verdict.Risk, m.Verdict.Confidence, m.Verdict.TotalBeats)
}

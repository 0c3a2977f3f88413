// Package main запускает потоковый обработчик: сигналы из NATS, вердикты обратно в NATS
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"arrhythmia-service/internal/cache"
	"arrhythmia-service/internal/classifier"
	"arrhythmia-service/internal/config"
	"arrhythmia-service/internal/metrics"
	"arrhythmia-service/internal/models"
	"arrhythmia-service/internal/pipeline"
	"arrhythmia-service/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	var (
		natsURL  = flag.String("nats", cfg.NATSURL, "NATS url")
		in       = flag.String("in", cfg.NATSInSubject, "input subject")
		out      = flag.String("out", cfg.NATSOutSubject, "output subject")
		useRedis = flag.Bool("redis", true, "store verdicts in Redis")
	)
	flag.Parse()

	nc, err := stream.Connect(*natsURL, "arrhythmia-processor")
	if err != nil {
		log.Fatal(err)
	}
	defer nc.Drain()

	var sink pipeline.ResultSink = pipeline.NopSink{}
	if *useRedis {
		redisCache, err := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Printf("Warning: Redis unavailable, verdicts are only published: %v", err)
		} else {
			defer redisCache.Close()
			sink = redisCache
		}
	}

	loader := classifier.FileLoader(cfg.ModelPath)
	if cfg.ModelURL != "" {
		loader = classifier.HTTPLoader(cfg.ModelURL, cfg.ModelTimeout())
	}
	model := classifier.NewLazy(loader)

	p, err := pipeline.New(cfg.Pipeline, model, pipeline.WithSink(sink, func(err error) {
		metrics.SinkErrors.Inc()
		log.Printf("Failed to store verdict: %v", err)
	}))
	if err != nil {
		log.Fatal(err)
	}

	dispatcher := pipeline.NewDispatcher(p, cfg.BufferSize)
	dispatcher.Start(cfg.WorkerCount)

	proc := stream.NewProcessor(dispatcher, nc, *out, cfg.UseRuleGuard, func(v *models.SignalVerdict) {
		metrics.ObserveVerdict(v)
		log.Printf("Verdict %s (%s): class=%s risk=%s beats=%d V=%d",
			v.ID, v.SubjectID, v.Class, v.Risk, v.TotalBeats, v.VentricularBeats)
	})

	// Очередь подписки делит нагрузку между несколькими процессорами
	sub, err := nc.QueueSubscribe(*in, "arrhythmia-processors", proc.Handle)
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("processor running: %s -> %s (%d workers)", *in, *out, cfg.WorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("processor: stopping")
	sub.Unsubscribe()
	dispatcher.Stop()
}

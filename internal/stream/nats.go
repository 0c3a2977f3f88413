// Package stream принимает сигналы из NATS и публикует вердикты
package stream

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"arrhythmia-service/internal/apperrors"
	"arrhythmia-service/internal/models"
	"arrhythmia-service/internal/pipeline"
)

// Connect подключается к NATS с бесконечными переподключениями
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}

// Publisher отправляет сообщение в subject; *nats.Conn удовлетворяет интерфейсу
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message результат обработки одного сигнала из потока
type Message struct {
	Verdict *models.SignalVerdict `json:"verdict,omitempty"`
	Error   string                `json:"error,omitempty"`
	Kind    string                `json:"kind,omitempty"`
}

// Processor разбирает входящие сигналы и отдает их в пул воркеров
type Processor struct {
	dispatcher   *pipeline.Dispatcher
	pub          Publisher
	outSubject   string
	useRuleGuard bool
	observe      func(*models.SignalVerdict)
}

// NewProcessor создает обработчик потока. observe может быть nil
func NewProcessor(d *pipeline.Dispatcher, pub Publisher, outSubject string, useRuleGuard bool,
	observe func(*models.SignalVerdict)) *Processor {
	if observe == nil {
		observe = func(*models.SignalVerdict) {}
	}
	return &Processor{
		dispatcher:   d,
		pub:          pub,
		outSubject:   outSubject,
		useRuleGuard: useRuleGuard,
		observe:      observe,
	}
}

// Handle обработчик подписки NATS. Ответ уходит в outSubject и, если задан, в msg.Reply
func (p *Processor) Handle(msg *nats.Msg) {
	p.HandleData(context.Background(), msg.Data, msg.Reply)
}

// HandleData обрабатывает одно сообщение с JSON запросом
func (p *Processor) HandleData(ctx context.Context, data []byte, reply string) {
	var req models.PredictionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		p.publish(reply, Message{
			Error: "invalid JSON: " + err.Error(),
			Kind:  apperrors.Kind(apperrors.ErrValidation),
		})
		return
	}

	accepted := p.dispatcher.Submit(ctx, pipeline.FromPrediction(req, p.useRuleGuard),
		func(v *models.SignalVerdict, err error) {
			if err != nil {
				log.Printf("Stream evaluation failed: %v", err)
				p.publish(reply, Message{Error: err.Error(), Kind: apperrors.Kind(err)})
				return
			}
			p.observe(v)
			p.publish(reply, Message{Verdict: v})
		})
	if !accepted {
		p.publish(reply, Message{Error: pipeline.ErrDispatcherStopped.Error(), Kind: apperrors.Kind(pipeline.ErrDispatcherStopped)})
	}
}

func (p *Processor) publish(reply string, m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		log.Printf("Failed to marshal stream message: %v", err)
		return
	}
	if err := p.pub.Publish(p.outSubject, b); err != nil {
		log.Printf("Failed to publish to %s: %v", p.outSubject, err)
	}
	if reply != "" {
		if err := p.pub.Publish(reply, b); err != nil {
			log.Printf("Failed to reply to %s: %v", reply, err)
		}
	}
}

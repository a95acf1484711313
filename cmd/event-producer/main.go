// Command event-producer publishes synthetic chat events to the inbound
// topic, for load testing and local demos.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/spotbot/internal/kafka"
)

var playerNames = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

func playerID(idx int) string {
	return fmt.Sprintf("%s%d", playerNames[idx%len(playerNames)], idx/len(playerNames)+1)
}

// generator builds a stream of spots with the occasional retraction of a
// recent one
type generator struct {
	scopes       []string
	players      int
	retractRatio float64
	recent       []string
}

func (g *generator) next() kafka.InboundEvent {
	if len(g.recent) > 0 && rand.Float64() < g.retractRatio {
		i := rand.IntN(len(g.recent))
		key := g.recent[i]
		g.recent = append(g.recent[:i], g.recent[i+1:]...)
		return kafka.InboundEvent{Type: kafka.EventRetract, EventKey: key}
	}

	scorer := rand.IntN(g.players)
	targets := []string{}
	for _, idx := range rand.Perm(g.players)[:1+rand.IntN(2)] {
		if idx != scorer {
			targets = append(targets, playerID(idx))
		}
	}
	if len(targets) == 0 {
		targets = append(targets, playerID((scorer+1)%g.players))
	}

	key := uuid.NewString()
	g.recent = append(g.recent, key)
	if len(g.recent) > 100 {
		g.recent = g.recent[1:]
	}
	return kafka.InboundEvent{
		Type:     kafka.EventSpot,
		ScopeID:  g.scopes[rand.IntN(len(g.scopes))],
		ActorID:  playerID(scorer),
		Targets:  targets,
		EventKey: key,
		ImageRef: "img-" + key,
	}
}

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "spotbot-events", "Kafka topic")
	scopes := flag.String("scopes", "C-general", "Scope ids (comma-separated)")
	players := flag.Int("players", 20, "Number of distinct players")
	rate := flag.Int("rate", 10, "Events per second")
	retractRatio := flag.Float64("retract-ratio", 0.05, "Share of events that retract an earlier spot")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	if *players < 2 || *rate < 1 {
		log.Fatal("need at least 2 players and a positive rate")
	}

	fmt.Println("spotbot event producer")
	fmt.Printf("  Brokers:   %s\n", *brokers)
	fmt.Printf("  Topic:     %s\n", *topic)
	fmt.Printf("  Scopes:    %s\n", *scopes)
	fmt.Printf("  Players:   %d\n", *players)
	fmt.Printf("  Rate:      %d/sec\n", *rate)
	fmt.Println()

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(strings.Split(*brokers, ","), config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount, sentCount int64
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func(reason string) {
		fmt.Printf("\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("Completed. Sent: %d, Acked: %d, Errors: %d\n",
			atomic.LoadInt64(&sentCount), atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	gen := &generator{
		scopes:       strings.Split(*scopes, ","),
		players:      *players,
		retractRatio: *retractRatio,
	}

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var deadline <-chan time.Time
	if *duration > 0 {
		deadline = time.After(*duration)
	}

	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return
		case <-deadline:
			shutdown("Duration reached")
			return
		case <-ticker.C:
			ev := gen.next()
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("Failed to marshal event: %v", err)
				continue
			}
			key := ev.ScopeID
			if key == "" {
				key = ev.EventKey
			}
			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(key),
				Value: sarama.ByteEncoder(data),
			}
			atomic.AddInt64(&sentCount, 1)
		case <-statsTicker.C:
			fmt.Printf("[%s] Sent: %d | Acked: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&sentCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}

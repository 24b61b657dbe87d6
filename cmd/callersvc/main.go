package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/casino-services/configs"
	"github.com/avvvet/casino-services/internal/casino/caller"
	"github.com/avvvet/casino-services/internal/casino/clock"
	"github.com/avvvet/casino-services/internal/comm"
	natscli "github.com/avvvet/casino-services/internal/nats"
)

const SERVICE_NAME = "caller"

func init() {
	instanceId := "001"
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	// connect to NATS
	n, err := natscli.Connect("", "", SERVICE_NAME+" service")
	if err != nil {
		log.Fatalf("unable to connect to NATS: %v", err)
	}
	defer n.Conn.Close()
	log.Infof("NATS connected at %s", n.Url)

	ctx, cancel := context.WithCancel(context.Background())
	c := caller.New(n.Conn, clock.Real{})

	// subscribe to keno-drawn events
	sub, err := n.Conn.Subscribe(comm.SubjectEvents, func(msg *nats.Msg) {
		c.Handle(ctx, msg.Data)
	})
	if err != nil {
		log.Fatalf("subscribe error: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	sub.Unsubscribe()
	cancel()
	c.Wait()
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}

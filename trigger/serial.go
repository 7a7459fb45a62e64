package trigger

import (
	"bufio"
	"context"
	"log"
	"strings"

	"github.com/tarm/serial"

	"camrig/config"
)

// SerialTrigger listens on a serial port for a hardware stop button. Rigs
// mounted out of reach often wire a microcontroller button to the Pi; the
// firmware writes "STOP\n" when pressed. A trigger fire requests the same
// shutdown path as a process signal.
type SerialTrigger struct {
	cfg    config.TriggerConfig
	onStop func()
}

// NewSerialTrigger creates a trigger that invokes onStop when the stop
// command is received.
func NewSerialTrigger(cfg config.TriggerConfig, onStop func()) *SerialTrigger {
	return &SerialTrigger{cfg: cfg, onStop: onStop}
}

// Start opens the port and listens until ctx is cancelled. A port that
// cannot be opened is logged and the trigger disabled; the rig still stops
// via signals.
func (t *SerialTrigger) Start(ctx context.Context) {
	port, err := serial.OpenPort(&serial.Config{
		Name: t.cfg.SerialPort,
		Baud: t.cfg.BaudRate,
	})
	if err != nil {
		log.Printf("[Trigger] Could not open serial port %s: %v (hardware stop disabled)", t.cfg.SerialPort, err)
		return
	}

	log.Printf("[Trigger] Listening for stop button on %s @ %d baud", t.cfg.SerialPort, t.cfg.BaudRate)

	go func() {
		<-ctx.Done()
		port.Close()
	}()

	go func() {
		scanner := bufio.NewScanner(port)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if strings.EqualFold(line, "STOP") {
				log.Println("[Trigger] Hardware stop button pressed")
				t.onStop()
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			log.Printf("[Trigger] Serial read error: %v", err)
		}
	}()
}

// Command milight-example demonstrates bridge discovery and zone control.
//
// This example shows how to:
//   - Discover iBox2 bridges via UDP broadcast
//   - Establish a command session
//   - Send power, brightness, temperature, and color commands
//   - Run a disco mode
//
// Usage:
//
//	go run ./cmd/milight-example
//
// The example will:
//  1. Scan the local network for bridges
//  2. Connect to the first bridge found (or the factory default address)
//  3. Walk the lamps in all zones through a short light show
//  4. Switch the lamps off and disconnect
package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/milight-protocol/milight-go/pkg/control"
	"github.com/milight-protocol/milight-go/pkg/discovery"
	"github.com/milight-protocol/milight-go/pkg/session"
	"github.com/milight-protocol/milight-go/pkg/wire"
)

// stepPause keeps the light show watchable. The session already paces
// individual datagrams; this spacing is purely cosmetic.
const stepPause = 500 * time.Millisecond

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.Println("Milight iBox2 Example Controller")
	log.Println("================================")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Find a bridge, falling back to the factory default address.
	addr, port := findBridge(ctx)

	sess := session.New(session.Config{
		Addr: addr,
		Port: port,
	})
	if err := sess.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect to %s:%d: %v", addr, port, err)
	}
	defer sess.Disconnect()

	id1, id2 := sess.SessionIDs()
	log.Printf("Session established with %s:%d (IDs 0x%02X 0x%02X)", addr, port, id1, id2)

	// The session satisfies control.CommandSender directly. Zone 0
	// addresses every zone the bridge serves.
	ctrl := control.NewController(sess, control.Config{
		Zone:         wire.ZoneAll,
		ConnectionID: sess.ConnectionID(),
	})

	runLightShow(ctx, ctrl)

	log.Println("Done")
}

func findBridge(ctx context.Context) (string, uint16) {
	log.Println("Scanning for bridges...")

	scanCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	scanner := discovery.NewScanner(discovery.Config{})
	bridges, err := scanner.Scan(scanCtx)
	if err != nil {
		log.Printf("Discovery not available: %v", err)
	}

	if len(bridges) == 0 {
		log.Printf("No bridges found, using default %s:%d", wire.DefaultBridgeAddr, wire.DefaultPort)
		return wire.DefaultBridgeAddr, wire.DefaultPort
	}

	for _, b := range bridges {
		log.Printf("Found bridge %s", b)
	}
	return bridges[0].Addr, bridges[0].Port
}

func runLightShow(ctx context.Context, ctrl *control.Controller) {
	log.Println("Switching lamps on")
	must("light on", ctrl.LightOn(ctx))
	must("white mode", ctrl.White(ctx))
	pause()

	log.Println("Sweeping brightness")
	for _, percent := range []uint8{10, 40, 70, 100} {
		must("brightness", ctrl.Brightness(ctx, percent))
		pause()
	}

	log.Println("Stepping white temperature")
	for _, kelvin := range []int{2700, 4600, 6500} {
		must("temperature", ctrl.Temperature(ctx, kelvin))
		pause()
	}

	log.Println("Walking the color wheel")
	for _, color := range control.Colors() {
		log.Printf("  %s", strings.ToLower(color.String()))
		must("color", ctrl.Color(ctx, color))
		pause()
	}

	log.Println("Softening saturation")
	must("saturation", ctrl.Saturation(ctx, 40))
	pause()

	log.Println("Running disco mode 1")
	must("mode", ctrl.Mode(ctx, 1))
	pause()
	must("speed up", ctrl.ModeSpeedUp(ctx))
	time.Sleep(3 * time.Second)

	log.Println("Night light, then off")
	must("night mode", ctrl.Night(ctx))
	pause()
	must("light off", ctrl.LightOff(ctx))
}

func must(step string, err error) {
	if err != nil {
		log.Fatalf("Failed to send %s: %v", step, err)
	}
}

func pause() {
	time.Sleep(stepPause)
}

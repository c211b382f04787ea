// Display-sim - bench stand-in for the chest touch panel
//
// Speaks the panel side of the display line protocol over a serial path
// (a socat pty pair or a USB adapter). Prints every decoded line the
// robot sends and emits synthetic touch events, so the greeter path can
// be exercised without panel hardware.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/wrenlabs/go-wren/pkg/display"
)

var (
	portPath   = flag.String("port", "/dev/ttyUSB0", "serial path of the panel side")
	baud       = flag.Int("baud", 115200, "baud rate")
	touchEvery = flag.Duration("touch-every", 0, "emit a synthetic touch on this interval (0 = only on enter)")
	region     = flag.String("region", "belly", "region reported with synthetic touches")
)

func main() {
	flag.Parse()

	fmt.Println("🐦 wren display sim")
	fmt.Printf("panel side on %s @ %d baud\n", *portPath, *baud)

	port, err := serial.Open(*portPath, &serial.Mode{BaudRate: *baud})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *portPath, err)
		os.Exit(1)
	}
	defer port.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Announce ourselves the way the panel firmware does on boot.
	hello, err := display.NewHello("sim-1.0", 240, 240)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build hello: %v\n", err)
		os.Exit(1)
	}
	if err := send(port, hello); err != nil {
		fmt.Fprintf(os.Stderr, "send hello: %v\n", err)
		os.Exit(1)
	}

	go readRobot(port)
	if *touchEvery > 0 {
		go autoTouch(port, *touchEvery)
	}
	go enterTouch(port)

	fmt.Println("press enter to touch the panel, Ctrl+C to quit")
	<-sigChan
	fmt.Println("\npanel offline")
}

// send writes one protocol line.
func send(port serial.Port, msg *display.Message) error {
	line, err := msg.Bytes()
	if err != nil {
		return err
	}
	_, err = port.Write(append(line, '\n'))
	return err
}

// readRobot prints every line the robot sends, decoded where the
// protocol knows the type.
func readRobot(port serial.Port) {
	sc := bufio.NewScanner(port)
	for sc.Scan() {
		raw := sc.Text()
		msg, err := display.ParseMessage([]byte(raw))
		if err != nil {
			fmt.Printf("  ?? %s\n", raw)
			continue
		}
		switch msg.Type {
		case display.TypeSay:
			fmt.Printf("  💬 say %q (face %s)\n", msg.Text, msg.Expression)
		case display.TypeExpression:
			fmt.Printf("  🙂 expression %s\n", msg.Expression)
		case display.TypeStatus:
			fmt.Printf("  ℹ️  status %q\n", msg.Text)
		case display.TypeClear:
			fmt.Println("  🧹 clear")
		default:
			fmt.Printf("  ?? %s\n", raw)
		}
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read: %v\n", err)
	}
}

// autoTouch pokes the panel on a timer.
func autoTouch(port serial.Port, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		touch(port)
	}
}

// enterTouch pokes the panel whenever the operator hits enter.
func enterTouch(port serial.Port) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		touch(port)
	}
}

func touch(port serial.Port) {
	msg, err := display.NewTouch(rand.Intn(240), rand.Intn(240), *region)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build touch: %v\n", err)
		return
	}
	if err := send(port, msg); err != nil {
		fmt.Fprintf(os.Stderr, "send touch: %v\n", err)
		return
	}
	fmt.Printf("  👆 touch sent (%s)\n", *region)
}

// Interactive client: discovers a server over UDP broadcast, then offers a
// numbered menu of services until the user picks Exit.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/hasirciogluhq/emergency-directory/pkg/client"
)

var services = []string{
	"Police", "Ambulance", "Fire", "Vehicle Repair", "Food Delivery", "Blood Bank",
}

// requester is the part of client.Session the menu drives.
type requester interface {
	Request(ctx context.Context, service string) (string, error)
	Exit() error
}

var (
	heading = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen)
	warning = color.New(color.FgYellow)
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := os.Getenv("SERVER_ADDR")
	if addr == "" {
		fmt.Println("Searching for emergency server...")
		disc := &client.Discoverer{
			Target: getEnv("DISCOVERY_TARGET", "255.255.255.255:10841"),
			Probe:  getEnv("DISCOVERY_TOKEN", client.DefaultProbe),
		}
		var err error
		addr, err = disc.Discover(ctx)
		if err != nil {
			color.Red("Discovery failed: %v", err)
			os.Exit(1)
		}
		success.Printf("Discovered server at %s\n", addr)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	sess, err := client.Dial(dialCtx, addr)
	cancel()
	if err != nil {
		color.Red("Connection failed: %v", err)
		os.Exit(1)
	}
	defer sess.Close()

	if err := run(ctx, os.Stdin, os.Stdout, sess); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

// run shows the menu and forwards choices until Exit, end of input or ctx
// cancellation.
func run(ctx context.Context, in io.Reader, out io.Writer, sess requester) error {
	scanner := bufio.NewScanner(in)
	exitChoice := len(services) + 1

	for ctx.Err() == nil {
		printMenu(out)
		if !scanner.Scan() {
			return scanner.Err()
		}

		choice, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			warning.Fprintf(out, "Invalid input. Please enter a number between 1 and %d.\n", exitChoice)
			continue
		}
		if choice == exitChoice {
			fmt.Fprintln(out, "Exiting... Sending exit message to server.")
			return sess.Exit()
		}
		if choice < 1 || choice > len(services) {
			warning.Fprintln(out, "Invalid choice. Please try again.")
			continue
		}

		reply, err := sess.Request(ctx, services[choice-1])
		if err != nil {
			return err
		}
		success.Fprintf(out, "Response from server: %s\n", reply)
	}
	return nil
}

func printMenu(out io.Writer) {
	heading.Fprintln(out, "\nAvailable Emergency Services:")
	for i, s := range services {
		fmt.Fprintf(out, "%d. %s\n", i+1, s)
	}
	fmt.Fprintf(out, "%d. Exit\n", len(services)+1)
	fmt.Fprint(out, "Please enter the number corresponding to the service you need: ")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

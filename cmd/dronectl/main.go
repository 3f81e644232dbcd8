package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/danmuck/dronectl/internal/config"
	"github.com/danmuck/dronectl/internal/device"
	"github.com/danmuck/dronectl/internal/discovery"
	"github.com/danmuck/dronectl/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	logging.ConfigureRuntime()

	var err error
	switch os.Args[1] {
	case "discover":
		err = runDiscover(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dronectl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: dronectl <discover|status> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Common flags:")
	fmt.Fprintln(os.Stderr, "  -config          Path to dronectl.toml (defaults apply when omitted)")
	fmt.Fprintln(os.Stderr, "  -wait            How long to search the network (default 5s)")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "status flags:")
	fmt.Fprintln(os.Stderr, "  -device          Connect to this device name instead of the first found")
}

func loadRuntime(path string) (config.Runtime, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runDiscover(args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to dronectl.toml")
	wait := fs.Duration("wait", 5*time.Second, "how long to search")
	fs.Parse(args)

	cfg, err := loadRuntime(*cfgPath)
	if err != nil {
		return err
	}

	session := discovery.Start(cfg.Discovery)
	defer session.Stop()

	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		if err := session.WaitForChange(time.Until(deadline)); err != nil {
			break
		}
	}

	devices := session.Devices()
	if len(devices) == 0 {
		fmt.Println("no devices found")
		return nil
	}
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := devices[name]
		fmt.Printf("%-30s %s %s:%d\n", name, d.DeviceID, d.Addr, d.Port)
	}
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to dronectl.toml")
	wait := fs.Duration("wait", 5*time.Second, "how long to search")
	name := fs.String("device", "", "device name to connect to")
	fs.Parse(args)

	cfg, err := loadRuntime(*cfgPath)
	if err != nil {
		return err
	}

	desc, err := findDevice(cfg.Discovery, *name, *wait)
	if err != nil {
		return err
	}

	dev, err := device.Connect(&desc, cfg.Network)
	if err != nil {
		return err
	}
	defer dev.Close()

	fmt.Printf("device:  %s (%s)\n", desc.Name, dev.Profile().Model)
	fmt.Printf("address: %s:%d\n", desc.Addr, desc.Port)
	fmt.Printf("battery: %d%%\n", dev.Battery())
	if v, ok := dev.Store().Get("ARDrone3", "PilotingState", "FlyingStateChanged"); ok {
		fmt.Printf("flying state: %d\n", v.Args["state"].Int)
	}
	return nil
}

// findDevice searches until a matching device appears or the wait elapses.
func findDevice(cfg discovery.Config, name string, wait time.Duration) (discovery.DeviceDescriptor, error) {
	session := discovery.Start(cfg)
	defer session.Stop()

	deadline := time.Now().Add(wait)
	for {
		for devName, d := range session.Devices() {
			if name == "" || devName == name {
				return d, nil
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			if name != "" {
				return discovery.DeviceDescriptor{}, fmt.Errorf("device %q not found", name)
			}
			return discovery.DeviceDescriptor{}, errors.New("no devices found")
		}
		if err := session.WaitForChange(remaining); err != nil {
			if errors.Is(err, discovery.ErrTimedOut) {
				continue
			}
			return discovery.DeviceDescriptor{}, err
		}
	}
}

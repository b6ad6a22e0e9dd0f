package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"mbif/client"
	"mbif/config"
	"mbif/host/mcu"
	"mbif/host/serial"
)

var (
	device     = flag.String("device", "", "Serial device path (overrides the config file)")
	baud       = flag.Int("baud", 0, "Baud rate (ignored for USB CDC)")
	configPath = flag.String("config", "", "YAML config file")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		os.Exit(1)
	}

	scfg := serial.DefaultConfig(cfg.Serial.Device)
	scfg.Baud = cfg.Serial.Baud
	scfg.ReadTimeout = cfg.Serial.ReadTimeoutMs
	if *device != "" {
		scfg.Device = *device
	}
	if *baud != 0 {
		scfg.Baud = *baud
	}
	if scfg.Device == "" {
		scfg.Device = "/dev/ttyACM0"
	}

	fmt.Println("mbif host - micro:bit interface chip over the I2C bridge")
	fmt.Println("========================================================")
	fmt.Println()

	fmt.Printf("Connecting to bridge on %s...\n", scfg.Device)
	conn, err := mcu.ConnectWithConfig(scfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	info, err := conn.ReadInfo()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	mcu.PrintInfo(os.Stdout, info)

	r := &repl{conn: conn, dev: conn.Device(), base: cfg.Storage.Base}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		if parts[0] == "quit" || parts[0] == "exit" || parts[0] == "q" {
			fmt.Println("Goodbye!")
			return
		}
		if err := r.run(parts[0], parts[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help                   - Show this help message")
	fmt.Println("  info                   - Read every property and the file config")
	fmt.Println("  power <1|2|3>          - Request running, sleep or power down")
	fmt.Println("  ledsleep <on|off>      - Keep the LED on while asleep")
	fmt.Println("  autosleep <on|off>     - Sleep automatically when idle")
	fmt.Println("  name <NAME.EXT>        - Set the file name")
	fmt.Println("  size <bytes>           - Set the file size")
	fmt.Println("  visible <on|off>       - Show or hide the file")
	fmt.Println("  window <start> <end>   - Set the hex encoding window")
	fmt.Println("  cfgwrite / cfgerase    - Persist or erase the file config")
	fmt.Println("  remount                - Remount the drive")
	fmt.Println("  read <addr> <n>        - Read data as hex")
	fmt.Println("  write <addr> <hex>     - Write hex bytes")
	fmt.Println("  erase <start> <end>    - Erase sectors, both addresses inclusive")
	fmt.Println("  dump <file> [n]        - Save the data region as Intel HEX")
	fmt.Println("  load <file>            - Program an Intel HEX image")
	fmt.Println("  events [seconds]       - Wait for user events")
	fmt.Println("  quit/exit/q            - Exit the program")
	fmt.Println()
}

type repl struct {
	conn *mcu.MCU
	dev  *client.Device
	base uint32
}

func (r *repl) run(cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		printHelp()

	case "info":
		info, err := r.conn.ReadInfo()
		if err != nil {
			return err
		}
		mcu.PrintInfo(os.Stdout, info)

	case "power":
		if len(args) != 1 {
			return fmt.Errorf("usage: power <mode>")
		}
		mode, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return r.dev.SetPowerMode(uint8(mode))

	case "ledsleep", "autosleep", "visible":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <on|off>", cmd)
		}
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		switch cmd {
		case "ledsleep":
			return r.dev.SetLEDSleepState(on)
		case "autosleep":
			return r.dev.SetAutomaticSleep(on)
		default:
			return r.dev.SetFileVisible(on)
		}

	case "name":
		if len(args) != 1 {
			return fmt.Errorf("usage: name <NAME.EXT>")
		}
		padded, err := padName(args[0])
		if err != nil {
			return err
		}
		stored, err := r.dev.SetFileName(padded)
		if err != nil {
			return err
		}
		fmt.Printf("Name: %q\n", stored)

	case "size":
		if len(args) != 1 {
			return fmt.Errorf("usage: size <bytes>")
		}
		n, err := parseUint(args[0])
		if err != nil {
			return err
		}
		return r.dev.SetFileSize(n)

	case "window":
		if len(args) != 2 {
			return fmt.Errorf("usage: window <start> <end>")
		}
		start, err := parseUint(args[0])
		if err != nil {
			return err
		}
		end, err := parseUint(args[1])
		if err != nil {
			return err
		}
		return r.dev.SetEncodingWindow(start, end)

	case "cfgwrite":
		return r.dev.WriteConfig()

	case "cfgerase":
		return r.dev.EraseConfig()

	case "remount":
		return r.dev.Remount()

	case "read":
		if len(args) != 2 {
			return fmt.Errorf("usage: read <addr> <n>")
		}
		addr, err := parseUint(args[0])
		if err != nil {
			return err
		}
		n, err := parseUint(args[1])
		if err != nil {
			return err
		}
		data, err := r.dev.ReadData(addr, int(n))
		if err != nil {
			return err
		}
		fmt.Print(hex.Dump(data))

	case "write":
		if len(args) != 2 {
			return fmt.Errorf("usage: write <addr> <hex>")
		}
		addr, err := parseUint(args[0])
		if err != nil {
			return err
		}
		data, err := hex.DecodeString(args[1])
		if err != nil {
			return err
		}
		return r.dev.WriteData(addr, data)

	case "erase":
		if len(args) != 2 {
			return fmt.Errorf("usage: erase <start> <end>")
		}
		start, err := parseUint(args[0])
		if err != nil {
			return err
		}
		end, err := parseUint(args[1])
		if err != nil {
			return err
		}
		return r.dev.EraseData(start, end)

	case "dump":
		return r.dump(args)

	case "load":
		if len(args) != 1 {
			return fmt.Errorf("usage: load <file>")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		if err := r.conn.LoadHex(f, r.base); err != nil {
			return err
		}
		fmt.Println("Image programmed")

	case "events":
		return r.events(args)

	default:
		fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", cmd)
	}
	return nil
}

func (r *repl) dump(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: dump <file> [n]")
	}
	var n uint32
	var err error
	if len(args) == 2 {
		n, err = parseUint(args[1])
	} else {
		n, err = r.dev.FileSize()
	}
	if err != nil {
		return err
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := r.conn.DumpHex(f, r.base, int(n)); err != nil {
		f.Close()
		return err
	}
	fmt.Printf("Saved %d bytes to %s\n", n, args[0])
	return f.Close()
}

func (r *repl) events(args []string) error {
	wait := 10 * time.Second
	if len(args) == 1 {
		secs, err := parseUint(args[0])
		if err != nil {
			return err
		}
		wait = time.Duration(secs) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	fmt.Println("Waiting for events...")
	for {
		if err := r.conn.Bridge().WaitLine(ctx, 20*time.Millisecond); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		kind, err := r.dev.ReadUserEvent()
		if err != nil {
			return err
		}
		fmt.Printf("User event: %d\n", kind)
	}
}

func parseUint(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return uint32(v), nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true", "yes":
		return true, nil
	case "off", "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// padName turns NAME.EXT into the 11 byte space padded form
func padName(s string) (string, error) {
	base, ext, _ := strings.Cut(strings.ToUpper(s), ".")
	if base == "" || len(base) > 8 || len(ext) > 3 {
		return "", fmt.Errorf("name %q is not 8.3", s)
	}
	return fmt.Sprintf("%-8s%-3s", base, ext), nil
}

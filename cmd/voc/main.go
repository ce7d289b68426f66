package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/volvooncall/voc/internal/log"
	"github.com/volvooncall/voc/pkg/cli"
	"github.com/volvooncall/voc/pkg/geocode"
	"github.com/volvooncall/voc/pkg/owntracks"
	"github.com/volvooncall/voc/pkg/voc"
)

const appVersion = "0.1.0"

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Credentials are merged from flags, environment variables, voc.conf, and
   the system keyring; explicit values win.
 * Without -i, the first vehicle on the account is used.
 * Without a COMMAND, an interactive shell is started.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(env *Env, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := execute(ctx, env, args); err != nil {
		writeErr("Error: %s", err)
		return 1
	}
	return 0
}

func runInteractiveShell(env *Env, timeout time.Duration) int {
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Printf("> "); scanner.Scan(); fmt.Printf("> ") {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		runCommand(env, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		verbose        bool
		veryVerbose    bool
		showVersion    bool
		commandTimeout time.Duration
		connTimeout    time.Duration
	)
	config := cli.NewConfig()
	flag.Usage = Usage
	flag.BoolVar(&verbose, "v", false, "Log informational messages")
	flag.BoolVar(&veryVerbose, "vv", false, "Log debug messages, including service traffic")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.DurationVar(&commandTimeout, "command-timeout", 60*time.Second, "Set timeout for a single command.")
	flag.DurationVar(&connTimeout, "connect-timeout", 60*time.Second, "Set timeout for establishing the session.")
	config.RegisterCommandLineFlags()
	flag.Parse()

	if showVersion {
		fmt.Println(appVersion)
		status = 0
		return
	}

	level := log.LevelError
	if veryVerbose {
		level = log.LevelDebug
	} else if verbose {
		level = log.LevelInfo
	}
	logger := log.New(level)
	config.SetLogger(logger)

	args := flag.Args()
	if len(args) > 0 && args[0] == "help" {
		if len(args) == 1 {
			Usage()
			status = 0
			return
		}
		info, ok := commands[args[1]]
		if !ok {
			writeErr("Unrecognized command: %s", args[1])
			return
		}
		info.Usage(args[1])
		status = 0
		return
	}

	config.ReadFromEnvironment()
	if err := config.ReadFromFile(); err != nil {
		writeErr("Error reading credential file: %s", err)
		return
	}
	if err := config.LoadCredentials(); err != nil {
		writeErr("Error loading credentials: %s", err)
		return
	}

	env := &Env{
		config:       config,
		logger:       logger,
		newEncrypter: func(passphrase string) owntracks.Encrypter { return owntracks.NewEncrypter(passphrase) },
		out:          os.Stdout,
	}
	if config.Geocode {
		env.geocoder = geocode.NewClient("voc/"+appVersion, logger)
	}

	needSession := true
	if len(args) > 0 {
		if info, ok := commands[args[0]]; ok {
			needSession = info.requiresSession
		}
	}

	if needSession {
		if err := config.Validate(); err != nil {
			writeErr("Error: %s", err)
			return
		}
		conn, err := voc.NewConnection(config.Username, config.Password,
			voc.ServiceURL(config.Region, config.ServiceURL), logger)
		if err != nil {
			writeErr("Error: %s", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
		defer cancel()
		if err := conn.Update(ctx, true); err != nil {
			writeErr("Could not establish session: %s", err)
			return
		}
		env.conn = conn
	}

	if len(args) > 0 {
		status = runCommand(env, args, commandTimeout)
	} else {
		status = runInteractiveShell(env, commandTimeout)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/volvooncall/voc/internal/log"
	"github.com/volvooncall/voc/pkg/cli"
	"github.com/volvooncall/voc/pkg/geocode"
	"github.com/volvooncall/voc/pkg/owntracks"
	"github.com/volvooncall/voc/pkg/voc"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrUnknownCommand  = errors.New("unrecognized command")
)

// Env carries everything a command handler may need. The geocoder and
// encrypter factory are optional capabilities: handlers branch on presence
// instead of probing for support at call time.
type Env struct {
	config       *cli.Config
	conn         *voc.Connection
	logger       *log.Logger
	geocoder     geocode.Geocoder
	newEncrypter func(passphrase string) owntracks.Encrypter
	out          io.Writer

	// now is stubbed in tests.
	now func() time.Time
}

func (e *Env) timestamp() int64 {
	if e.now != nil {
		return e.now().Unix()
	}
	return time.Now().Unix()
}

func (e *Env) encrypterFor(passphrase string) owntracks.Encrypter {
	if e.newEncrypter == nil {
		return nil
	}
	return e.newEncrypter(passphrase)
}

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, env *Env, car *voc.Vehicle, args map[string]string) error

type Command struct {
	help            string
	requiresSession bool // True if the command talks to the VOC service
	requiresVehicle bool // True if the command targets a single vehicle
	args            []Argument
	optional        []Argument
	handler         Handler
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

// execute runs exactly one command. Vehicle selection happens here so that
// handlers receive their target directly.
func execute(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}
	info, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
	if info.requiresSession && env.conn == nil {
		return errors.New("no session available")
	}

	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).",
			len(args)-1, len(info.args), len(info.optional))
		info.Usage(args[0])
		return ErrCommandLineArgs
	}
	keywords := make(map[string]string)
	for i, argInfo := range info.args {
		keywords[argInfo.name] = args[i+1]
	}
	index := len(info.args) + 1
	for _, argInfo := range info.optional {
		if index >= len(args) {
			break
		}
		keywords[argInfo.name] = args[index]
		index++
	}

	var car *voc.Vehicle
	if info.requiresVehicle {
		var err error
		car, err = voc.Select(env.conn.Vehicles(), env.config.VIN)
		if err != nil {
			return err
		}
	}
	return info.handler(ctx, env, car, keywords)
}

var commands = map[string]*Command{
	"list": {
		help:            "List the vehicles on the account",
		requiresSession: true,
		handler:         cmdList,
	},
	"status": {
		help:            "Print vehicle status (use -g to include a reverse-geocoded address)",
		requiresSession: true,
		requiresVehicle: true,
		handler:         cmdStatus,
	},
	"trips": {
		help:            "Print the vehicle's trip history",
		requiresSession: true,
		requiresVehicle: true,
		handler:         cmdTrips,
	},
	"print": {
		help:            "Print the full attribute document, or a single attribute",
		requiresSession: true,
		requiresVehicle: true,
		optional: []Argument{
			{name: "ATTRIBUTE", help: "attribute name, e.g. car_locked"},
		},
		handler: cmdPrint,
	},
	"owntracks": {
		help:            "Print an OwnTracks location report (encrypted when a passphrase is configured)",
		requiresSession: true,
		requiresVehicle: true,
		handler:         cmdOwntracks,
	},
	"lock": {
		help:            "Lock vehicle",
		requiresSession: true,
		requiresVehicle: true,
		handler: func(ctx context.Context, env *Env, car *voc.Vehicle, args map[string]string) error {
			return car.Lock(ctx)
		},
	},
	"unlock": {
		help:            "Unlock vehicle",
		requiresSession: true,
		requiresVehicle: true,
		handler: func(ctx context.Context, env *Env, car *voc.Vehicle, args map[string]string) error {
			return car.Unlock(ctx)
		},
	},
	"heater": {
		help:            "Start or stop the parking heater",
		requiresSession: true,
		requiresVehicle: true,
		args: []Argument{
			{name: "STATE", help: "start or stop"},
		},
		handler: cmdHeater,
	},
	"call": {
		help:            "Invoke an arbitrary remote method on the vehicle",
		requiresSession: true,
		requiresVehicle: true,
		args: []Argument{
			{name: "METHOD", help: "remote method name, e.g. honk_blink/both"},
		},
		handler: func(ctx context.Context, env *Env, car *voc.Vehicle, args map[string]string) error {
			return car.Call(ctx, args["METHOD"])
		},
	},
	"credentials": {
		help:    "Store the password (and owntracks key, if set) in the system keyring",
		handler: cmdCredentials,
	},
}

func cmdList(ctx context.Context, env *Env, car *voc.Vehicle, args map[string]string) error {
	for v := range env.conn.Vehicles() {
		fmt.Fprintln(env.out, v)
	}
	return nil
}

func cmdStatus(ctx context.Context, env *Env, car *voc.Vehicle, args map[string]string) error {
	address := ""
	if env.config.Geocode {
		if lat, lon, ok := car.Position(); ok {
			address = geocode.Address(ctx, env.geocoder, lat, lon, env.logger)
		}
	}
	fmt.Fprint(env.out, FormatStatus(car, address))
	return nil
}

func cmdTrips(ctx context.Context, env *Env, car *voc.Vehicle, args map[string]string) error {
	trips, err := car.Trips(ctx)
	if err != nil {
		return err
	}
	text, err := indentJSON(trips)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.out, text)
	return nil
}

func cmdPrint(ctx context.Context, env *Env, car *voc.Vehicle, args map[string]string) error {
	if name, ok := args["ATTRIBUTE"]; ok {
		value, err := car.Attribute(name)
		if err != nil {
			return err
		}
		text, err := indentJSON(value)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.out, text)
		return nil
	}
	text, err := indentJSON(car.Attributes())
	if err != nil {
		return err
	}
	fmt.Fprintln(env.out, text)
	return nil
}

func cmdOwntracks(ctx context.Context, env *Env, car *voc.Vehicle, args map[string]string) error {
	lat, lon, ok := car.Position()
	if !ok {
		return errors.New("no position available for vehicle")
	}
	report := owntracks.NewReport(lat, lon, env.timestamp(), car.Attributes())
	var out string
	var err error
	if passphrase := env.config.OwntracksKey; passphrase != "" {
		out, err = owntracks.EncodeEncrypted(report, env.encrypterFor(passphrase))
	} else {
		out, err = owntracks.EncodePlain(report)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(env.out, out)
	return nil
}

func cmdHeater(ctx context.Context, env *Env, car *voc.Vehicle, args map[string]string) error {
	switch args["STATE"] {
	case "start":
		return car.StartHeater(ctx)
	case "stop":
		return car.StopHeater(ctx)
	}
	return fmt.Errorf("%w: STATE must be start or stop", ErrCommandLineArgs)
}

func cmdCredentials(ctx context.Context, env *Env, car *voc.Vehicle, args map[string]string) error {
	if env.config.Username == "" {
		return errors.New("a username is required to store credentials (-u)")
	}
	password := env.config.Password
	if password == "" {
		var err error
		password, err = cli.PromptPassword()
		if err != nil {
			return err
		}
	}
	if password == "" {
		return errors.New("no password to store")
	}
	if err := env.config.SavePasswordToKeyring(password); err != nil {
		return err
	}
	fmt.Fprintln(env.out, "Password stored in system keyring")
	if env.config.OwntracksKey != "" {
		if err := env.config.SaveOwntracksKeyToKeyring(env.config.OwntracksKey); err != nil {
			return err
		}
		fmt.Fprintln(env.out, "Owntracks key stored in system keyring")
	}
	return nil
}

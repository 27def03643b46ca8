package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joshp123/geocosy/internal/config"
	"github.com/joshp123/geocosy/internal/logger"
	"github.com/joshp123/geocosy/plugins/cosy"
)

func main() {
	flags := flag.NewFlagSet("geocosy-cli", flag.ExitOnError)
	configPath := flags.String("config", "", "config file (defaults to GEOCOSY_CONFIG or the standard search paths)")
	jsonOutput := flags.Bool("json", false, "print JSON output")
	verbose := flags.Bool("v", false, "log vendor requests to stderr")
	flags.Usage = usage
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	out := outputMode{json: *jsonOutput}

	if args[0] == "plugins" {
		pluginsCmd(ctx, args[1:], out)
		return
	}

	cfg := loadConfig(*configPath)
	level := logger.ErrorLevel
	if *verbose {
		level = logger.DebugLevel
	}
	log := logger.New(level)
	defer func() { _ = log.Sync() }()

	clientCfg, err := cosy.ConfigFromSettings(cfg.Cosy)
	if err != nil {
		fatal("config", err)
	}
	client, err := cosy.NewClient(clientCfg, log)
	if err != nil {
		fatal("client", err)
	}
	defer client.Close()

	switch args[0] {
	case "login":
		loginCmd(ctx, client, out)
	case "system":
		systemCmd(ctx, client, out)
	case "state":
		connect(ctx, client)
		stateCmd(ctx, client, out)
	case "setpoints":
		connect(ctx, client)
		setpointsCmd(ctx, client, out)
	case "set-temp":
		connect(ctx, client)
		setTempCmd(ctx, client, args[1:])
	case "preset":
		connect(ctx, client)
		presetCmd(ctx, client, args[1:])
	case "hibernate":
		connect(ctx, client)
		hibernateCmd(ctx, client, args[1:])
	default:
		usage()
		os.Exit(2)
	}
}

func loadConfig(path string) *config.Config {
	if path == "" {
		path = os.Getenv("GEOCOSY_CONFIG")
	}
	if path == "" {
		for _, candidate := range configSearchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.FromEnv()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		fatal("config", err)
	}
	return cfg
}

func configSearchPaths() []string {
	paths := []string{config.DefaultPath}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "geocosy", "config.yaml"))
	}
	return paths
}

func connect(ctx context.Context, client *cosy.Client) {
	if err := client.Connect(ctx); err != nil {
		fatal("connect", err)
	}
}

// loginCmd validates credentials the way a setup flow would, reporting
// invalid_auth or cannot_connect.
func loginCmd(ctx context.Context, client *cosy.Client, out outputMode) {
	result := map[string]string{"result": "ok"}
	err := client.Connect(ctx)
	switch {
	case err == nil:
		systemID, _ := client.SystemID()
		uniqueID, _ := client.UniqueID()
		result["system_id"] = systemID
		result["unique_id"] = uniqueID
	case errors.Is(err, cosy.ErrAuthentication):
		result["result"] = "invalid_auth"
	default:
		result["result"] = "cannot_connect"
	}
	if err != nil {
		result["error"] = err.Error()
	}

	out.emit(result, [][]string{
		{"RESULT", "SYSTEM", "UNIQUE_ID"},
		{result["result"], result["system_id"], result["unique_id"]},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func systemCmd(ctx context.Context, client *cosy.Client, out outputMode) {
	systemID, err := client.ResolveSystemID(ctx)
	if err != nil {
		fatal("resolve system", err)
	}
	if out.json {
		out.printJSON(map[string]string{"system_id": systemID})
		return
	}
	fmt.Println(systemID)
}

func stateCmd(ctx context.Context, client *cosy.Client, out outputMode) {
	live, err := client.LiveState(ctx)
	if err != nil {
		fatal("read state", err)
	}
	uniqueID, _ := client.UniqueID()
	out.emit(map[string]any{
		"unique_id":           uniqueID,
		"temperature_celsius": live.TemperatureCelsius,
		"preset":              live.Mode.Preset(),
		"mode_code":           live.Mode.Code,
	}, [][]string{
		{"THERMOSTAT", "TEMP_C", "MODE"},
		{uniqueID, formatCelsius(live.TemperatureCelsius), live.Mode.String()},
	})
}

func setpointsCmd(ctx context.Context, client *cosy.Client, out outputMode) {
	setpoints, err := client.Setpoints(ctx)
	if err != nil {
		fatal("read setpoints", err)
	}
	byPreset := setpoints.ByPreset()
	rows := [][]string{{"PRESET", "TARGET_C"}}
	for _, preset := range cosy.NamedPresets() {
		var cell *float64
		if value, ok := byPreset[preset]; ok {
			cell = &value
		}
		rows = append(rows, []string{string(preset), formatCelsius(cell)})
	}
	out.emit(byPreset, rows)
}

func usage() {
	fmt.Println("geocosy-cli [--config path] [--json] [-v] <command> [args]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  login                          check credentials")
	fmt.Println("  system                         print the system id")
	fmt.Println("  state                          current temperature and mode")
	fmt.Println("  setpoints                      target temperature per preset")
	fmt.Println("  set-temp <preset> <celsius>    change a preset's target")
	fmt.Println("  preset <name> [--minutes N]    switch preset")
	fmt.Println("  hibernate on|off               enter or leave standby")
	fmt.Println("  plugins list|describe <id>     query a running daemon (--addr)")
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/joshp123/geocosy/plugins/cosy"
)

func setTempCmd(ctx context.Context, client *cosy.Client, args []string) {
	if len(args) < 2 {
		fatal("set-temp", fmt.Errorf("usage: geocosy-cli set-temp <preset> <celsius>"))
	}
	preset, err := resolvePreset(args[0])
	if err != nil {
		fatal("set-temp", err)
	}
	celsius, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fatal("set-temp", fmt.Errorf("invalid temperature %q", args[1]))
	}
	if err := client.SetTargetTemperature(ctx, preset, celsius); err != nil {
		fatal("set-temp", err)
	}
	fmt.Printf("%s target set to %.1f\n", preset, celsius)
}

func presetCmd(ctx context.Context, client *cosy.Client, args []string) {
	flags := flag.NewFlagSet("preset", flag.ExitOnError)
	minutes := flags.Int("minutes", 0, "override length for comfy/cosy (defaults to config)")
	if len(args) < 1 {
		fatal("preset", fmt.Errorf("usage: geocosy-cli preset <name> [--minutes N]"))
	}
	preset, err := resolvePreset(args[0])
	if err != nil {
		fatal("preset", err)
	}
	_ = flags.Parse(args[1:])

	duration := client.OverrideDuration()
	if *minutes > 0 {
		duration = time.Duration(*minutes) * time.Minute
	}
	if err := client.ActivatePresetFor(ctx, preset, duration); err != nil {
		fatal("preset", err)
	}
	fmt.Printf("preset %s applied\n", preset)
}

func hibernateCmd(ctx context.Context, client *cosy.Client, args []string) {
	if len(args) < 1 {
		fatal("hibernate", fmt.Errorf("usage: geocosy-cli hibernate on|off"))
	}
	var enabled bool
	switch normalizeName(args[0]) {
	case "on", "true":
		enabled = true
	case "off", "false":
		enabled = false
	default:
		fatal("hibernate", fmt.Errorf("expected on or off, got %q", args[0]))
	}
	if err := client.SetHibernate(ctx, enabled); err != nil {
		fatal("hibernate", err)
	}
	fmt.Printf("hibernate %t\n", enabled)
}

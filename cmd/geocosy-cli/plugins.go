package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/joshp123/geocosy/internal/config"
	"github.com/joshp123/geocosy/internal/core"
)

func pluginsCmd(ctx context.Context, args []string, out outputMode) {
	flags := flag.NewFlagSet("plugins", flag.ExitOnError)
	addr := flags.String("addr", envOrDefault("GEOCOSY_ADDR", "http://localhost"+portOf(config.DefaultHTTPAddr)), "daemon base URL")
	_ = flags.Parse(args)
	rest := flags.Args()
	if len(rest) < 1 {
		usage()
		os.Exit(2)
	}
	base := strings.TrimRight(*addr, "/")

	switch rest[0] {
	case "list":
		var resp struct {
			Plugins []core.PluginSummary `json:"plugins"`
		}
		if err := getJSON(ctx, base+"/registry/plugins", &resp); err != nil {
			fatal("list plugins", err)
		}
		if out.json {
			out.printJSON(resp.Plugins)
			return
		}
		rows := [][]string{{"ID", "NAME", "VERSION", "STATUS"}}
		for _, plugin := range resp.Plugins {
			rows = append(rows, []string{plugin.PluginID, plugin.DisplayName, plugin.Version, plugin.Status})
		}
		out.table(rows)
	case "describe":
		if len(rest) < 2 {
			fatal("describe", fmt.Errorf("missing plugin id"))
		}
		var resp struct {
			Plugin core.PluginDescriptor `json:"plugin"`
		}
		if err := getJSON(ctx, base+"/registry/plugins/"+rest[1], &resp); err != nil {
			fatal("describe plugin", err)
		}
		if out.json {
			out.printJSON(resp.Plugin)
			return
		}
		fmt.Printf("id: %s\n", resp.Plugin.PluginID)
		fmt.Printf("name: %s\n", resp.Plugin.DisplayName)
		fmt.Printf("version: %s\n", resp.Plugin.Version)
		fmt.Printf("status: %s\n", resp.Plugin.Status)
		if resp.Plugin.HealthMessage != "" {
			fmt.Printf("health: %s\n", resp.Plugin.HealthMessage)
		}
		fmt.Println("routes:")
		for _, route := range resp.Plugin.Routes {
			fmt.Printf("  - %s\n", route)
		}
		fmt.Println("dashboards:")
		for _, dash := range resp.Plugin.Dashboards {
			fmt.Printf("  - %s (%s)\n", dash.Name, dash.Path)
		}
		fmt.Println("agents_md:")
		fmt.Println(resp.Plugin.AgentsMD)
	default:
		usage()
		os.Exit(2)
	}
}

func getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func portOf(addr string) string {
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		return addr[idx:]
	}
	return ""
}

package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	client := &client{
		baseURL: resolveAddr(),
		http:    &http.Client{Timeout: 60 * time.Second},
	}

	switch os.Args[1] {
	case "discover":
		discoverCmd(client, os.Args[2:])
	case "adopt":
		adoptCmd(client, os.Args[2:])
	case "devices":
		devicesCmd(client)
	case "entities":
		entitiesCmd(client, os.Args[2:])
	case "history":
		historyCmd(client, os.Args[2:])
	case "remove":
		removeCmd(client, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: senso4s-cli <command> [args]

commands:
  discover [-timeout 15s]         scan for Senso4s devices
  adopt <address> [-area <area>]  configure a discovered device
  devices                         list configured devices
  entities <address>              show the device's entities
  history <address>               show the device's measurement log
  remove <address>                remove a configured device

The daemon address comes from SENSO4S_ADDR (default http://127.0.0.1:8080).`)
}

func resolveAddr() string {
	if addr := os.Getenv("SENSO4S_ADDR"); addr != "" {
		return addr
	}
	return "http://127.0.0.1:8080"
}

func discoverCmd(c *client, args []string) {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	timeout := fs.Duration("timeout", 15*time.Second, "scan duration")
	_ = fs.Parse(args)

	var resp struct {
		Candidates []struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"candidates"`
	}
	status, err := c.get("/api/v1/discovery?timeout="+url.QueryEscape(timeout.String()), &resp)
	if status == http.StatusNotFound {
		fmt.Println("No devices found. Move closer to the device and retry.")
		os.Exit(1)
	}
	if err != nil {
		fatal("discover", err)
	}

	for _, candidate := range resp.Candidates {
		fmt.Printf("%s\t%s\n", candidate.Address, candidate.Name)
	}
}

func adoptCmd(c *client, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	address := args[0]
	fs := flag.NewFlagSet("adopt", flag.ExitOnError)
	area := fs.String("area", "", "optional area to assign (skip by omitting)")
	_ = fs.Parse(args[1:])

	var resp struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Area    string `json:"area"`
	}
	if err := c.post("/api/v1/devices", map[string]string{"address": address, "area": *area}, &resp); err != nil {
		fatal("adopt", err)
	}

	fmt.Printf("adopted %s", resp.Address)
	if resp.Name != "" {
		fmt.Printf(" (%s)", resp.Name)
	}
	if resp.Area != "" {
		fmt.Printf(" in %s", resp.Area)
	}
	fmt.Println()
}

func devicesCmd(c *client) {
	var resp struct {
		Devices []struct {
			Address   string `json:"address"`
			Name      string `json:"name"`
			Model     string `json:"model"`
			Area      string `json:"area"`
			LastError string `json:"last_error"`
		} `json:"devices"`
	}
	if _, err := c.get("/api/v1/devices", &resp); err != nil {
		fatal("devices", err)
	}

	for _, device := range resp.Devices {
		status := "ok"
		if device.LastError != "" {
			status = device.LastError
		}
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", device.Address, device.Model, device.Name, device.Area, status)
	}
}

func entitiesCmd(c *client, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	var resp struct {
		Entities []struct {
			Key   string `json:"key"`
			Name  string `json:"name"`
			Unit  string `json:"unit"`
			Value any    `json:"value"`
		} `json:"entities"`
	}
	if _, err := c.get("/api/v1/devices/"+url.PathEscape(args[0])+"/entities", &resp); err != nil {
		fatal("entities", err)
	}

	for _, entity := range resp.Entities {
		value := "unknown"
		if entity.Value != nil {
			value = fmt.Sprintf("%v", entity.Value)
			if entity.Unit != "" {
				value += " " + entity.Unit
			}
		}
		fmt.Printf("%-22s%-22s%s\n", entity.Key, entity.Name, value)
	}
}

func historyCmd(c *client, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	var resp struct {
		History []struct {
			MassKg float64   `json:"mass_kg"`
			Time   time.Time `json:"time"`
		} `json:"history"`
	}
	if _, err := c.get("/api/v1/devices/"+url.PathEscape(args[0])+"/history", &resp); err != nil {
		fatal("history", err)
	}

	for _, entry := range resp.History {
		fmt.Printf("%s\t%.2f kg\n", entry.Time.Format(time.RFC3339), entry.MassKg)
	}
}

func removeCmd(c *client, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	if err := c.delete("/api/v1/devices/" + url.PathEscape(args[0])); err != nil {
		fatal("remove", err)
	}
	fmt.Println("removed", args[0])
}

type client struct {
	baseURL string
	http    *http.Client
}

func (c *client) get(path string, dest any) (int, error) {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, apiError(resp)
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(dest)
}

func (c *client) post(path string, body any, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *client) delete(path string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return fmt.Errorf("%s (%s)", body.Error, resp.Status)
	}
	return fmt.Errorf("unexpected status %s", resp.Status)
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}

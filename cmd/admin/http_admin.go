package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// jukeboxCmd forwards "admin jukebox [-origin x,y,z] <x> <y> <z> <song>" to
// the server. Without -origin relative coordinates are rejected.
func jukeboxCmd(args []string) {
	fs := flag.NewFlagSet("jukebox", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	origin := fs.String("origin", "", "sender position x,y,z for ~ coordinates (optional)")
	_ = fs.Parse(args)

	body, err := jukeboxBody(strings.Join(fs.Args(), " "), *origin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -origin:", err)
		os.Exit(2)
	}

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/jukebox"
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

type vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func jukeboxBody(line, origin string) ([]byte, error) {
	req := struct {
		Args   string `json:"args"`
		Origin *vec3  `json:"origin,omitempty"`
	}{Args: line}
	if s := strings.TrimSpace(origin); s != "" {
		parts := strings.Split(s, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("expected x,y,z")
		}
		var v [3]float64
		for i := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
			if err != nil {
				return nil, err
			}
			v[i] = f
		}
		req.Origin = &vec3{X: v[0], Y: v[1], Z: v[2]}
	}
	return json.Marshal(req)
}

// config.go - Haupt-Konfigurationsfunktionen fuer captioner
//
// Dieses Modul enthaelt:
// - Host: Gibt Scheme und Host zurueck (CAPTIONER_HOST)
// - AllowedOrigins: Gibt erlaubte Origins zurueck (CAPTIONER_ORIGINS)
// - CheckpointPath/CheckpointURL: Lokaler und entfernter Checkpoint
// - EncoderModel/DecoderModel: HuggingFace-Repos der Teilmodelle
// - LogLevel: Gibt Log-Level zurueck (CAPTIONER_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_llm.go: LLM-Endpunkt, Timeouts und Wortband
// - config_utils.go: Utility-Funktionen und AsMap/Values
// - config_snapshot.go: Config-Wertobjekt fuer Konstruktoren
package envconfig

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Standardwerte fuer das Captioning-Modell
const (
	DefaultCheckpointPath = "/tmp/checkpoint.pth"
	DefaultCheckpointURL  = "https://huggingface.co/Rishabh2234/image-caption-generator/resolve/main/checkpoint.pth"
	DefaultEncoderModel   = "google/vit-base-patch16-224-in21k"
	DefaultDecoderModel   = "google-t5/t5-small"
)

// Host gibt Scheme und Host zurueck
// Konfigurierbar via CAPTIONER_HOST
// Default: http://127.0.0.1:8000
func Host() *url.URL {
	defaultPort := "8000"

	s := strings.TrimSpace(Var("CAPTIONER_HOST"))
	scheme, hostport, ok := strings.Cut(s, "://")
	switch {
	case !ok:
		scheme, hostport = "http", s
	case scheme == "http":
		defaultPort = "80"
	case scheme == "https":
		defaultPort = "443"
	}

	hostport, path, _ := strings.Cut(hostport, "/")
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = "127.0.0.1", defaultPort
		if ip := net.ParseIP(strings.Trim(hostport, "[]")); ip != nil {
			host = ip.String()
		} else if hostport != "" {
			host = hostport
		}
	}

	if n, err := strconv.ParseInt(port, 10, 32); err != nil || n > 65535 || n < 0 {
		slog.Warn("invalid port, using default", "port", port, "default", defaultPort)
		port = defaultPort
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, port),
		Path:   path,
	}
}

// AllowedOrigins gibt erlaubte Origins zurueck
// Konfigurierbar via CAPTIONER_ORIGINS (komma-separiert)
// Enthaelt Standard-Origins fuer localhost (inkl. Frontend auf :3000)
func AllowedOrigins() (origins []string) {
	if s := Var("CAPTIONER_ORIGINS"); s != "" {
		origins = strings.Split(s, ",")
	}

	for _, origin := range []string{"localhost", "127.0.0.1", "0.0.0.0"} {
		origins = append(origins,
			fmt.Sprintf("http://%s", origin),
			fmt.Sprintf("https://%s", origin),
			fmt.Sprintf("http://%s", net.JoinHostPort(origin, "*")),
			fmt.Sprintf("https://%s", net.JoinHostPort(origin, "*")),
		)
	}

	return origins
}

// CheckpointPath gibt den lokalen Checkpoint-Pfad zurueck
// Konfigurierbar via CAPTIONER_CHECKPOINT
// Default: /tmp/checkpoint.pth (beschreibbar in den meisten Umgebungen)
func CheckpointPath() string {
	if s := Var("CAPTIONER_CHECKPOINT"); s != "" {
		return s
	}
	return DefaultCheckpointPath
}

// CheckpointURL gibt die Fallback-URL fuer den Checkpoint zurueck
// Konfigurierbar via CAPTIONER_CHECKPOINT_URL
func CheckpointURL() string {
	if s := Var("CAPTIONER_CHECKPOINT_URL"); s != "" {
		return s
	}
	return DefaultCheckpointURL
}

// EncoderModel gibt das HuggingFace-Repo des Vision-Encoders zurueck
// Konfigurierbar via CAPTIONER_ENCODER_MODEL
func EncoderModel() string {
	if s := Var("CAPTIONER_ENCODER_MODEL"); s != "" {
		return s
	}
	return DefaultEncoderModel
}

// DecoderModel gibt das HuggingFace-Repo des Text-Decoders zurueck
// Konfigurierbar via CAPTIONER_DECODER_MODEL
func DecoderModel() string {
	if s := Var("CAPTIONER_DECODER_MODEL"); s != "" {
		return s
	}
	return DefaultDecoderModel
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via CAPTIONER_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("CAPTIONER_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

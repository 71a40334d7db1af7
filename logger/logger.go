package logger

import (
	"io"
	"log"
	"os"

	"github.com/allape/kvmbridge/envar"
)

var verbose = envar.Getenv(envar.KvmbridgeVerbose, "") != ""

var out io.Writer = os.Stdout

func init() {
	if file := envar.Getenv(envar.KvmbridgeLogFile, ""); file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Println("[logger] unable to open log file:", err)
		} else {
			out = io.MultiWriter(os.Stdout, f)
		}
	}
	if verbose {
		log.Println("[logger] verbose mode enabled")
	}
}

func New(prefix string) *log.Logger {
	return log.New(out, prefix+" ", log.LstdFlags)
}

func NewVerboseLogger(prefix string) *log.Logger {
	if verbose {
		return New(prefix)
	}
	return log.New(io.Discard, "", 0)
}

package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/allape/kvmbridge/kvm/command"
	"github.com/allape/kvmbridge/kvm/frame"
	"github.com/allape/kvmbridge/logger"
	"go.bug.st/serial"
)

var log = logger.New("[km]")

const (
	DefaultName = "/dev/ttyUSB0"
	DefaultBaud = 115200
)

func main() {
	name := DefaultName
	baud := DefaultBaud

	if len(os.Args) > 1 {
		name = os.Args[1]
	}
	if len(os.Args) > 2 {
		b, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalln("invalid baud:", os.Args[2])
		}
		baud = b
	}

	mode := &serial.Mode{
		BaudRate: baud,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		log.Fatalln("unable to open port:", err)
	}

	log.Println("listening on", name, "at", baud, "baud")
	log.Println("commands:", strings.Join(command.Names(), ", "))

	go func(port serial.Port) {
		buf := make([]byte, 1024)
		var pending []byte
		for {
			n, err := port.Read(buf)
			if err != nil {
				log.Fatalln("read error:", err)
			}
			if n == 0 {
				log.Println("EOF")
				return
			}
			pending = append(pending, buf[:n]...)
			for {
				f, consumed, err := frame.Scan(pending)
				pending = pending[consumed:]
				if f != nil {
					log.Println("<", Describe(f))
					continue
				}
				if errors.Is(err, frame.ErrChecksum) {
					log.Println("< bad checksum, skipping")
					continue
				}
				break
			}
		}
	}(port)

	go func(s serial.Port) {
		reader := bufio.NewReader(os.Stdin)
		for {
			text, err := reader.ReadString('\n')
			if err != nil {
				log.Fatalln("fail to read from stdin:", err)
			}

			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			log.Println(">", text)

			raw, err := ParseLine(text)
			if err != nil {
				log.Println(err)
				continue
			}

			log.Println("> 0x", hex.EncodeToString(raw))

			_, err = s.Write(raw)
			if err != nil {
				log.Fatalln("write error:", err)
			}
			err = s.Drain()
			if err != nil {
				log.Fatalln("flush error:", err)
			}
		}
	}(port)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	log.Println("awaiting signal")
	sig := <-sigs
	log.Println("exiting with", sig)

	_ = port.Close()
}

// ParseLine turns one console line into wire bytes: raw hex after 0x,
// raw bits after 0b, otherwise a command name with an optional hex
// payload, framed and checksummed.
func ParseLine(text string) ([]byte, error) {
	if strings.HasPrefix(text, "0x") {
		return hex.DecodeString(strings.ReplaceAll(text, " ", "")[2:])
	}
	if strings.HasPrefix(text, "0b") {
		return BitsString2Bytes(strings.ReplaceAll(text, " ", "")[2:])
	}

	name, rest, _ := strings.Cut(text, " ")
	var payload []byte
	if rest != "" {
		var err error
		payload, err = hex.DecodeString(strings.ReplaceAll(rest, " ", ""))
		if err != nil {
			return nil, err
		}
	}

	f, err := command.Build(name, payload)
	if err != nil {
		return nil, err
	}
	return f.Encode()
}

// Describe renders an inbound frame with its registry name and, for
// single-byte payloads, the ack status text.
func Describe(f *frame.Frame) string {
	name := fmt.Sprintf("%02X", f.Command)
	if desc, ok := command.ByCode(f.Command); ok {
		name = desc.Name
		if command.IsError(f.Command) {
			name += " error"
		}
	}

	out := name
	if len(f.Payload) > 0 {
		out += " 0x" + hex.EncodeToString(f.Payload)
	}
	if status, ok := command.AckStatus(f); ok {
		out += " (" + command.StatusText(status) + ")"
	}
	return out
}

func BitsString2Bytes(bitsStr string) ([]byte, error) {
	bits := []byte(bitsStr)
	if len(bits)%8 != 0 {
		return nil, errors.New("invalid binary string")
	}
	bs := make([]byte, len(bits)/8)
	for i := 0; i < len(bits); i++ {
		byteIndex := i / 8
		if bits[i] == '1' {
			bs[byteIndex] = bs[byteIndex]<<1 | 1
		} else {
			bs[byteIndex] = bs[byteIndex] << 1
		}
	}
	return bs, nil
}

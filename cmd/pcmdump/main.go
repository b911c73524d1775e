// pcmdump connects to a running bluemock instance, opens a PCM tap on
// one transport and writes the captured S16LE stream to a WAV file.
// Handy for eyeballing the synthesized payload in an audio editor.
package main

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  []string    `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

type transportInfo struct {
	Path       string `json:"path"`
	Role       string `json:"role"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

func main() {
	var (
		controlAddr string
		tapAddr     string
		path        string
		seconds     int
		acquire     bool
	)

	flag.StringVar(&controlAddr, "control", "127.0.0.1:8989", "bluemock control server address")
	flag.StringVar(&tapAddr, "tap", "127.0.0.1:50100", "bluemock pcm tap address")
	flag.StringVar(&path, "path", "/source/1", "transport path to capture")
	flag.IntVar(&seconds, "seconds", 5, "capture duration")
	flag.BoolVar(&acquire, "acquire", true, "acquire the transport before capturing")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <output-wav-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	outputPath := flag.Arg(0)

	info, err := lookupTransport(controlAddr, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving transport: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Capturing %s: %d Hz, %d channel(s), role %s\n", info.Path, info.SampleRate, info.Channels, info.Role)

	if acquire {
		if err := callControl(controlAddr, "transport_acquire", []string{path}, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error acquiring transport: %v\n", err)
			os.Exit(1)
		}
	}

	wavFile, err := os.Create(outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating WAV file: %v\n", err)
		os.Exit(1)
	}
	defer wavFile.Close()

	encoder := wav.NewEncoder(wavFile,
		info.SampleRate,
		16, // S16LE payload
		info.Channels,
		1, // Audio format 1 is PCM
	)
	defer encoder.Close()

	written, err := capture(tapAddr, path, time.Duration(seconds)*time.Second, info, encoder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error capturing: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Capture finished. Wrote %d frames (%.2f seconds) to %s\n",
		written, float64(written)/float64(info.SampleRate), outputPath)
}

// lookupTransport fetches the descriptor of one transport from the
// control API.
func lookupTransport(controlAddr, path string) (*transportInfo, error) {
	var infos []transportInfo
	if err := callControl(controlAddr, "list_transports", nil, &infos); err != nil {
		return nil, err
	}

	for i := range infos {
		if infos[i].Path == path {
			return &infos[i], nil
		}
	}
	return nil, fmt.Errorf("no transport %s", path)
}

// callControl performs one JSON-RPC call against the control server.
func callControl(controlAddr, method string, params []string, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return err
	}

	resp, err := http.Post("http://"+controlAddr+"/bluemock_api", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if len(rpcResp.Error) > 0 {
		return fmt.Errorf("%s failed: %s", method, rpcResp.Error)
	}
	if result != nil {
		return json.Unmarshal(rpcResp.Result, result)
	}
	return nil
}

// capture opens the tap and encodes received samples until the
// duration elapses.
func capture(tapAddr, path string, d time.Duration, info *transportInfo, encoder *wav.Encoder) (int, error) {
	conn, err := net.Dial("tcp", tapAddr)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(rpcRequest{JSONRPC: "2.0", Method: "pcm_open", Params: []string{path}, ID: 1}); err != nil {
		return 0, err
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return 0, err
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(line, &rpcResp); err != nil {
		return 0, err
	}
	if len(rpcResp.Error) > 0 {
		return 0, fmt.Errorf("pcm_open failed: %s", rpcResp.Error)
	}

	format := &audio.Format{NumChannels: info.Channels, SampleRate: info.SampleRate}
	deadline := time.Now().Add(d)
	buf := make([]byte, 4096)
	frames := 0

	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := reader.Read(buf)
		if n > 0 {
			n -= n % 2 // whole samples only
			intData := make([]int, n/2)
			for i := range intData {
				intData[i] = int(int16(binary.LittleEndian.Uint16(buf[i*2:])))
			}

			intBuf := &audio.IntBuffer{Format: format, Data: intData, SourceBitDepth: 16}
			if err := encoder.Write(intBuf); err != nil {
				return frames, err
			}
			frames += len(intData) / info.Channels
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if err == io.EOF {
				break
			}
			return frames, err
		}
	}

	return frames, nil
}

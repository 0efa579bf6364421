package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
)

// holisticService is a running helper process. Requests are a 4-byte
// big-endian length and a JPEG; replies are one JSON line shaped like
// Result, or {"error": "..."} when the helper fails on a frame.
type holisticService struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out *bufio.Reader
}

func startHolistic(python, script string, cfg Config) (*holisticService, error) {
	cmd := exec.Command(python, script,
		"--min-detection-confidence", strconv.FormatFloat(cfg.MinDetectionConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(cfg.MinTrackingConfidence, 'f', -1, 64),
	)
	cmd.Stderr = os.Stderr

	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("holistic stdin: %w", err)
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("holistic stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start holistic service: %w", err)
	}
	return &holisticService{cmd: cmd, in: in, out: bufio.NewReader(out)}, nil
}

func (s *holisticService) exchange(jpeg []byte) (*Result, error) {
	if err := writeFrame(s.in, jpeg); err != nil {
		return nil, err
	}
	return readReply(s.out)
}

// stop closes stdin, which ends the helper's read loop, and waits for it.
func (s *holisticService) stop() error {
	err := s.in.Close()
	if s.cmd != nil {
		if werr := s.cmd.Wait(); werr != nil {
			err = werr
		}
	}
	return err
}

func writeFrame(w io.Writer, jpeg []byte) error {
	msg := make([]byte, 4, 4+len(jpeg))
	binary.BigEndian.PutUint32(msg, uint32(len(jpeg)))
	msg = append(msg, jpeg...)
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

func readReply(r *bufio.Reader) (*Result, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return decodeReply(line)
}

func decodeReply(line []byte) (*Result, error) {
	var reply struct {
		Result
		Error string `json:"error"`
	}
	if err := json.Unmarshal(line, &reply); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("holistic service: %s", reply.Error)
	}
	return &reply.Result, nil
}

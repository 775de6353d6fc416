package hardware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"strconv"
	"time"
)

// Errors for inclinometer lines the controller must not act on
var (
	ErrMalformed = errors.New("malformed inclinometer line")
	ErrSelfTest  = errors.New("inclinometer self-test out of range")
	ErrStale     = errors.New("inclinometer reading too stale")
)

const (
	inclinometerReadSize = 1024
	// Self-test output must lie strictly inside ±selfTestLimit
	selfTestLimit = 70
	// Fields: ts x y z deg crcOkRate sto [temp angX angY angZ]
	minInclinometerFields = 7
)

// AngleReading is one decoded inclinometer line
type AngleReading struct {
	Timestamp time.Time
	X, Y, Z   float64
	Angle     float64 // degrees
	CRCOKRate float64
	SelfTest  int
	RawFields int
}

// ParseLine decodes a tab-separated inclinometer line and validates it against now.
// A NaN angle is returned as-is; callers decide whether to re-read.
func ParseLine(line []byte, maxAge time.Duration, now time.Time) (AngleReading, error) {
	fields := bytes.Split(bytes.TrimSpace(line), []byte{'\t'})
	if len(fields) < minInclinometerFields {
		return AngleReading{}, fmt.Errorf("%w: %d fields in %q", ErrMalformed, len(fields), line)
	}

	floats := make([]float64, 6)
	for i := range floats {
		v, err := strconv.ParseFloat(string(fields[i]), 64)
		if err != nil {
			return AngleReading{}, fmt.Errorf("%w: field %d: %v", ErrMalformed, i, err)
		}
		floats[i] = v
	}
	sto, err := strconv.Atoi(string(fields[6]))
	if err != nil {
		return AngleReading{}, fmt.Errorf("%w: self-test: %v", ErrMalformed, err)
	}

	sec, frac := math.Modf(floats[0])
	r := AngleReading{
		Timestamp: time.Unix(int64(sec), int64(frac*1e9)),
		X:         floats[1],
		Y:         floats[2],
		Z:         floats[3],
		Angle:     floats[4],
		CRCOKRate: floats[5],
		SelfTest:  sto,
		RawFields: len(fields),
	}

	if sto <= -selfTestLimit || sto >= selfTestLimit {
		return r, fmt.Errorf("%w: %d", ErrSelfTest, sto)
	}
	if age := now.Sub(r.Timestamp); age > maxAge {
		return r, fmt.Errorf("%w: %v old", ErrStale, age)
	}
	return r, nil
}

// InclinometerConfig holds connection settings for the inclinometer collector
type InclinometerConfig struct {
	Addr        string        // host:port of the collector (port 2017 on the rig)
	DialTimeout time.Duration // Connect timeout
	MaxAge      time.Duration // Reject lines older than this (e.g., 100ms)
	NaNRetry    time.Duration // Delay before re-reading after a NaN angle
}

// Inclinometer reads angles from the SCL3300 collector over TCP. The collector writes
// its latest line to each new connection and closes it.
type Inclinometer struct {
	cfg    InclinometerConfig
	dialer net.Dialer
	now    func() time.Time
}

// NewInclinometer creates a client for the collector at cfg.Addr
func NewInclinometer(cfg InclinometerConfig) *Inclinometer {
	return &Inclinometer{
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.DialTimeout},
		now:    time.Now,
	}
}

// Angle returns the current angle in degrees. Malformed, self-test failing and stale
// lines are returned as errors; NaN angles are re-read.
func (c *Inclinometer) Angle(ctx context.Context) (float64, error) {
	for {
		line, err := c.readLine(ctx)
		if err != nil {
			return 0, err
		}
		r, err := ParseLine(line, c.cfg.MaxAge, c.now())
		if err != nil {
			return 0, err
		}
		if !math.IsNaN(r.Angle) {
			return r.Angle, nil
		}

		log.Printf("Inclinometer: NaN angle, re-reading\n")
		select {
		case <-time.After(c.cfg.NaNRetry):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (c *Inclinometer) readLine(ctx context.Context) ([]byte, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("inclinometer connect: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	buf := make([]byte, inclinometerReadSize)
	n, err := conn.Read(buf)
	if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
		return nil, fmt.Errorf("inclinometer read: %w", err)
	}
	return buf[:n], nil
}

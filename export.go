package txwatch

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang/snappy"
)

// ExportFormat selects how the final snapshot is written.
type ExportFormat string

const (
	// ExportFormatSnapshot writes a snappy-compressed JSON snapshot,
	// optionally sealed with a password.
	ExportFormatSnapshot ExportFormat = "snapshot"
	// ExportFormatCSV writes one row per plotted point.
	ExportFormatCSV ExportFormat = "csv"
)

// ExportConfig configures the snapshot written when a session finishes.
type ExportConfig struct {
	// Enabled turns the export on.
	Enabled bool `yaml:"enabled"`

	// Key is the storage key. Empty means "exports/<transaction type>.txw"
	// (or ".csv").
	Key string `yaml:"key"`

	// Format is "snapshot" (default) or "csv".
	Format ExportFormat `yaml:"format"`

	// Password seals snapshot exports with AES-256-GCM when set.
	Password string `yaml:"password"`
}

// exportMagic prefixes every snapshot export.
var exportMagic = [4]byte{'T', 'X', 'W', '1'}

const exportFlagSealed byte = 1 << 0

// ErrNotAnExport is returned when data does not start with the export header.
var ErrNotAnExport = errors.New("not a txwatch export")

// Exporter writes the frozen session to a storage backend. It implements
// RenderSink and FinishSink; only Finish writes anything.
type Exporter struct {
	backend StorageBackend
	config  ExportConfig
	timeout time.Duration
}

// NewExporter creates an exporter writing to backend.
func NewExporter(backend StorageBackend, config ExportConfig) *Exporter {
	if config.Format == "" {
		config.Format = ExportFormatSnapshot
	}
	return &Exporter{backend: backend, config: config, timeout: 30 * time.Second}
}

// KeyFor returns the key the snapshot of transactionType is written to.
func (e *Exporter) KeyFor(transactionType string) string {
	if e.config.Key != "" {
		return e.config.Key
	}
	ext := ".txw"
	if e.config.Format == ExportFormatCSV {
		ext = ".csv"
	}
	return "exports/" + transactionType + ext
}

// Render implements RenderSink. Frames are ignored.
func (e *Exporter) Render(Frame) error { return nil }

// Finish implements FinishSink.
func (e *Exporter) Finish(snap SessionSnapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	_, err := e.Export(ctx, snap)
	return err
}

// Export encodes snap and writes it, returning the key used.
func (e *Exporter) Export(ctx context.Context, snap SessionSnapshot) (string, error) {
	var (
		data []byte
		err  error
	)
	switch e.config.Format {
	case ExportFormatSnapshot:
		data, err = EncodeSnapshot(snap, e.config.Password)
	case ExportFormatCSV:
		data, err = EncodeSnapshotCSV(snap)
	default:
		err = fmt.Errorf("unknown export format %q", e.config.Format)
	}
	if err != nil {
		return "", err
	}

	key := e.KeyFor(snap.TransactionType)
	if err := e.backend.Write(ctx, key, data); err != nil {
		return "", fmt.Errorf("write export %q: %w", key, err)
	}
	return key, nil
}

// EncodeSnapshot serializes snap as header, optional salt and the
// snappy-compressed JSON body, sealed when password is non-empty.
func EncodeSnapshot(snap SessionSnapshot, password string) ([]byte, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	payload := snappy.Encode(nil, body)

	var buf bytes.Buffer
	buf.Write(exportMagic[:])
	if password == "" {
		buf.WriteByte(0)
		buf.Write(payload)
		return buf.Bytes(), nil
	}

	sealer, err := NewSealer(password)
	if err != nil {
		return nil, err
	}
	sealed, err := sealer.Seal(payload)
	if err != nil {
		return nil, fmt.Errorf("seal snapshot: %w", err)
	}
	buf.WriteByte(exportFlagSealed)
	buf.Write(sealer.Salt())
	buf.Write(sealed)
	return buf.Bytes(), nil
}

// DecodeSnapshot reverses EncodeSnapshot.
func DecodeSnapshot(data []byte, password string) (SessionSnapshot, error) {
	var snap SessionSnapshot
	if len(data) < len(exportMagic)+1 || !bytes.Equal(data[:len(exportMagic)], exportMagic[:]) {
		return snap, ErrNotAnExport
	}
	flags := data[len(exportMagic)]
	payload := data[len(exportMagic)+1:]

	if flags&exportFlagSealed != 0 {
		if password == "" {
			return snap, errors.New("export is sealed: password required")
		}
		if len(payload) < SealSaltSize {
			return snap, ErrNotAnExport
		}
		sealer, err := NewSealerWithSalt(password, payload[:SealSaltSize])
		if err != nil {
			return snap, err
		}
		if payload, err = sealer.Open(payload[SealSaltSize:]); err != nil {
			return snap, err
		}
	}

	body, err := snappy.Decode(nil, payload)
	if err != nil {
		return snap, fmt.Errorf("decompress snapshot: %w", err)
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// ReadExport loads and decodes a snapshot export.
func ReadExport(ctx context.Context, backend StorageBackend, key, password string) (SessionSnapshot, error) {
	data, err := backend.Read(ctx, key)
	if err != nil {
		return SessionSnapshot{}, fmt.Errorf("read export %q: %w", key, err)
	}
	return DecodeSnapshot(data, password)
}

// EncodeSnapshotCSV writes status, time, value and anomaly columns for
// every plotted point, statuses in session order.
func EncodeSnapshotCSV(snap SessionSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"status", "time", "value", "anomaly"}); err != nil {
		return nil, err
	}
	for _, st := range snap.Statuses {
		for i, p := range st.Plotted {
			row := []string{
				st.Status,
				p.Timestamp.Format(time.TimeOnly),
				strconv.FormatFloat(p.Value, 'f', -1, 64),
				strconv.FormatBool(st.IsMarked(i)),
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

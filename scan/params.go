package scan

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hugr-lab/mongoport-go"
	"github.com/hugr-lab/mongoport-go/schema"
)

// ScanParams is the MessagePack wire form of a scan call's parameters, as
// engines serialize table-function arguments.
type ScanParams struct {
	Connection string        `msgpack:"connection"`
	Database   string        `msgpack:"database"`
	Collection string        `msgpack:"collection"`
	Filter     string        `msgpack:"filter,omitempty"`
	Pipeline   string        `msgpack:"pipeline,omitempty"`
	SampleSize int64         `msgpack:"sample_size,omitempty"`
	Columns    []ColumnParam `msgpack:"columns,omitempty"`
	SchemaMode string        `msgpack:"schema_mode,omitempty"`
}

// ColumnParam is one child of the columns parameter: either name and type,
// or name, type, and an explicit document path.
type ColumnParam struct {
	Name string `msgpack:"name"`
	Type string `msgpack:"type"`
	Path string `msgpack:"path,omitempty"`
}

// DecodeParams deserializes a MessagePack parameter blob.
func DecodeParams(data []byte) (*ScanParams, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty parameter data", mongoport.ErrInvalidInput)
	}
	var p ScanParams
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decoding parameters: %v", mongoport.ErrInvalidInput, err)
	}
	return &p, nil
}

// EncodeParams serializes parameters for transport.
func EncodeParams(p *ScanParams) ([]byte, error) {
	data, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding parameters: %w", err)
	}
	return data, nil
}

// BindArgs validates the parameters and converts them to bind arguments.
func (p *ScanParams) BindArgs() (BindArgs, error) {
	if p.Connection == "" || p.Database == "" || p.Collection == "" {
		return BindArgs{}, fmt.Errorf(
			"%w: mongo_scan requires at least 3 arguments: connection_string, database, collection",
			mongoport.ErrInvalidInput)
	}
	columns := make([]schema.ColumnSpec, 0, len(p.Columns))
	for _, c := range p.Columns {
		if c.Name == "" || c.Type == "" {
			return BindArgs{}, fmt.Errorf(`%w: "columns" parameter entries must contain a "type" field`,
				mongoport.ErrInvalidInput)
		}
		columns = append(columns, schema.ColumnSpec{Name: c.Name, Type: c.Type, Path: c.Path})
	}
	return BindArgs{
		Connection: p.Connection,
		Database:   p.Database,
		Collection: p.Collection,
		Filter:     p.Filter,
		Pipeline:   p.Pipeline,
		SampleSize: p.SampleSize,
		Columns:    columns,
		SchemaMode: p.SchemaMode,
	}, nil
}

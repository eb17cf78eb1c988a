package filter

import (
	"fmt"

	"github.com/tensorleaf/go-hdf5/internal/message"
)

type stage struct {
	spec message.FilterSpec
	f    Filter // nil when the filter has no implementation
}

// Pipeline is the ordered filter chain of one dataset.
type Pipeline struct {
	stages []stage
}

// NewPipeline builds the pipeline for a filter message. A nil message gives
// an empty pipeline. Filters without an implementation only fail when a
// chunk actually needs them.
func NewPipeline(m *message.Filters, elemSize int) *Pipeline {
	p := &Pipeline{}
	if m == nil {
		return p
	}
	for _, spec := range m.List {
		f, _ := New(spec, elemSize)
		p.stages = append(p.stages, stage{spec: spec, f: f})
	}
	return p
}

// Len returns the number of filters.
func (p *Pipeline) Len() int { return len(p.stages) }

// Empty reports whether the pipeline has no filters.
func (p *Pipeline) Empty() bool { return len(p.stages) == 0 }

// Decode undoes every filter not masked out, last filter first.
func (p *Pipeline) Decode(data []byte, mask uint32) ([]byte, error) {
	for i := len(p.stages) - 1; i >= 0; i-- {
		if i < 32 && mask&(1<<uint(i)) != 0 {
			continue
		}
		s := p.stages[i]
		if s.f == nil {
			return nil, fmt.Errorf("%w: %s (id %d)", ErrUnavailable, Name(s.spec.ID), s.spec.ID)
		}
		out, err := s.f.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s decode: %w", Name(s.spec.ID), err)
		}
		data = out
	}
	return data, nil
}

// Encode applies the filters in order and returns the mask of filters that
// were skipped. An optional filter that fails or is unavailable is skipped;
// a required one aborts the write.
func (p *Pipeline) Encode(data []byte) ([]byte, uint32, error) {
	var mask uint32
	for i, s := range p.stages {
		var (
			out []byte
			err error
		)
		if s.f == nil {
			err = fmt.Errorf("%w: %s (id %d)", ErrUnavailable, Name(s.spec.ID), s.spec.ID)
		} else {
			out, err = s.f.Encode(data)
		}
		if err != nil {
			if s.spec.Optional() && i < 32 {
				mask |= 1 << uint(i)
				continue
			}
			return nil, 0, fmt.Errorf("%s encode: %w", Name(s.spec.ID), err)
		}
		data = out
	}
	return data, mask, nil
}

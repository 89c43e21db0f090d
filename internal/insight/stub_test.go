package insight

import (
	"context"
	"io"

	"freightline/api_compass/pkg/llm"
)

// scriptedStream replays a fixed chunk sequence then EOFs, mirroring how a
// provider stream drains.
type scriptedStream struct {
	chunks []llm.Chunk
	next   int
}

func (s *scriptedStream) Recv() (llm.Chunk, error) {
	if s.next >= len(s.chunks) {
		return llm.Chunk{}, io.EOF
	}
	chunk := s.chunks[s.next]
	s.next++
	return chunk, nil
}

func (s *scriptedStream) Close() error { return nil }

// scriptedProvider hands out one scripted stream per Complete call and
// records the transcripts it was given.
type scriptedProvider struct {
	rounds      [][]llm.Chunk
	err         error
	calls       int
	transcripts [][]llm.Message
}

func (p *scriptedProvider) Complete(_ context.Context, messages []llm.Message, _ []llm.Tool) (llm.Stream, error) {
	copied := make([]llm.Message, len(messages))
	copy(copied, messages)
	p.transcripts = append(p.transcripts, copied)
	if p.err != nil {
		return nil, p.err
	}
	if p.calls >= len(p.rounds) {
		p.calls++
		return &scriptedStream{}, nil
	}
	stream := &scriptedStream{chunks: p.rounds[p.calls]}
	p.calls++
	return stream, nil
}

func textChunks(parts ...string) []llm.Chunk {
	chunks := make([]llm.Chunk, 0, len(parts))
	for _, part := range parts {
		chunks = append(chunks, llm.Chunk{Content: part})
	}
	return chunks
}

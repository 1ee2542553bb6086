package embedding

import (
	"math"
	"strings"
	"testing"
)

func TestEncodeDecodeVectorRoundTrip(t *testing.T) {
	original := []float32{0.5, -1.25, 0, 2.75}

	encoded, err := EncodeVector(original)
	if err != nil {
		t.Fatalf("EncodeVector error: %v", err)
	}

	decoded, err := DecodeVector(encoded)
	if err != nil {
		t.Fatalf("DecodeVector error: %v", err)
	}

	if len(decoded) != len(original) {
		t.Fatalf("decoded length=%d, want %d", len(decoded), len(original))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Fatalf("decoded[%d]=%v, want %v", i, decoded[i], original[i])
		}
	}
}

func TestDecodeVectorMalformed(t *testing.T) {
	t.Run("short blob", func(t *testing.T) {
		if _, err := DecodeVector([]byte{0x01, 0x02}); err == nil {
			t.Fatal("expected error for short blob")
		}
	})

	t.Run("dimension payload mismatch", func(t *testing.T) {
		// Declares dim=2 but carries a single float32.
		blob := []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x80, 0x3f}
		_, err := DecodeVector(blob)
		if err == nil {
			t.Fatal("expected error for mismatched payload")
		}
		if !strings.Contains(err.Error(), "dimension mismatch") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical vectors score 1", func(t *testing.T) {
		score, err := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
		if err != nil {
			t.Fatalf("CosineSimilarity error: %v", err)
		}
		if math.Abs(score-1.0) > 1e-9 {
			t.Fatalf("score=%v, want 1.0", score)
		}
	})

	t.Run("opposite vectors score -1", func(t *testing.T) {
		score, err := CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
		if err != nil {
			t.Fatalf("CosineSimilarity error: %v", err)
		}
		if math.Abs(score+1.0) > 1e-9 {
			t.Fatalf("score=%v, want -1.0", score)
		}
	})

	t.Run("orthogonal vectors score 0", func(t *testing.T) {
		score, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
		if err != nil {
			t.Fatalf("CosineSimilarity error: %v", err)
		}
		if score != 0 {
			t.Fatalf("score=%v, want 0", score)
		}
	})

	t.Run("zero vector scores exactly 0", func(t *testing.T) {
		score, err := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3})
		if err != nil {
			t.Fatalf("CosineSimilarity error: %v", err)
		}
		if score != 0 {
			t.Fatalf("score=%v, want exactly 0", score)
		}
	})

	t.Run("symmetric", func(t *testing.T) {
		a := []float32{0.3, -0.7, 0.2}
		b := []float32{0.9, 0.1, -0.4}
		ab, err := CosineSimilarity(a, b)
		if err != nil {
			t.Fatalf("CosineSimilarity error: %v", err)
		}
		ba, err := CosineSimilarity(b, a)
		if err != nil {
			t.Fatalf("CosineSimilarity error: %v", err)
		}
		if ab != ba {
			t.Fatalf("asymmetric: %v vs %v", ab, ba)
		}
		if ab < -1 || ab > 1 {
			t.Fatalf("score out of bounds: %v", ab)
		}
	})

	t.Run("dimension mismatch errors", func(t *testing.T) {
		if _, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); err == nil {
			t.Fatal("expected dimension mismatch error")
		}
	})
}

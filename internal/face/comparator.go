package face

import (
	"errors"
	"math"
)

// DefaultMatchThreshold 单位向量欧氏距离阈值，小于该值视为同一人
const DefaultMatchThreshold = 0.8

var (
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrEmptyInput          = errors.New("no embeddings to average")
	ErrNoEnrolledTemplates = errors.New("no enrolled templates")
)

// Match 最佳匹配结果
type Match struct {
	Index      int
	Distance   float64
	Similarity float64
	IsMatch    bool
}

// Distance 欧氏距离
func Distance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// CosineSimilarity 余弦相似度，任一向量为零向量时返回 0
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// 浮点误差可能略超出 [-1,1]
	return math.Max(-1, math.Min(1, sim)), nil
}

// AverageEmbeddings 逐元素求均值，用于多姿态录入
func AverageEmbeddings(list [][]float64) ([]float64, error) {
	if len(list) == 0 {
		return nil, ErrEmptyInput
	}
	if len(list) == 1 {
		return list[0], nil
	}

	dim := len(list[0])
	out := make([]float64, dim)
	for _, v := range list {
		if len(v) != dim {
			return nil, ErrDimensionMismatch
		}
		for i := range v {
			out[i] += v[i]
		}
	}
	for i := range out {
		out[i] /= float64(len(list))
	}
	return out, nil
}

// CompareAgainstAll 线性扫描全部模板，取距离最小者，距离相同时取先出现的
func CompareAgainstAll(incoming []float64, enrolled [][]float64, threshold float64) (Match, error) {
	if len(enrolled) == 0 {
		return Match{}, ErrNoEnrolledTemplates
	}

	best := Match{Index: -1}
	for i, tmpl := range enrolled {
		d, err := Distance(incoming, tmpl)
		if err != nil {
			return Match{}, err
		}
		sim, err := CosineSimilarity(incoming, tmpl)
		if err != nil {
			return Match{}, err
		}
		if best.Index == -1 || d < best.Distance {
			best = Match{Index: i, Distance: d, Similarity: sim}
		}
	}

	best.IsMatch = best.Distance < threshold
	return best, nil
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

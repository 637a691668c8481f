package face

import (
	"math"

	"AttendGate/internal/model"
)

// EmbeddingDim 输出向量维度，不足补零，超出截断
const EmbeddingDim = model.EmbeddingDim

// ContourSamples 人脸外轮廓采样点数
const ContourSamples = 32

// 关键点缺失时比例特征的中性取值
const (
	DefaultInterEyeRatio   = 0.4
	DefaultEyeAsymmetry    = 0.0
	DefaultNoseMouthRatio  = 0.25
	DefaultEyeNoseRatio    = 0.2
	DefaultMouthWidthRatio = 0.35
	DefaultCheekAsymmetry  = 0.0
	DefaultEarEyeRatio     = 0.3
)

// 质量分权重
const (
	landmarkQualityWeight = 0.4
	contourQualityWeight  = 0.6
)

// Extraction 特征提取结果
type Extraction struct {
	Vector  []float64
	Quality float64
	// ZeroNorm 归一化前向量为全零，Vector 原样返回
	ZeroNorm bool
}

// Extract 将人脸几何信息转换为定长单位向量，不会失败
//
// 向量布局依次为：7 个比例特征，10 个关键点相对框中心的偏移，
// 3 个头部角度，32 个外轮廓采样点，2 个眉毛弯曲度，其余补零。
func Extract(geom model.FaceGeometry) Extraction {
	w, h := boxSides(geom.Box)
	center := geom.Box.Center()

	vec := make([]float64, 0, EmbeddingDim)
	vec = append(vec, identityRatios(geom.Landmarks, w, h)...)

	for _, lt := range model.LandmarkTypes {
		p, ok := geom.Landmarks[lt]
		if !ok {
			vec = append(vec, 0, 0)
			continue
		}
		vec = append(vec, (p.X-center.X)/w, (p.Y-center.Y)/h)
	}

	vec = append(vec, geom.Angles.X/180, geom.Angles.Y/180, geom.Angles.Z/180)
	vec = append(vec, contourSignature(geom.Contours[model.ContourFace], center, w, h)...)
	vec = append(vec,
		eyebrowCurvature(geom.Contours[model.ContourLeftEyebrowTop], h),
		eyebrowCurvature(geom.Contours[model.ContourRightEyebrowTop], h),
	)

	vec = fitDimension(vec, EmbeddingDim)
	normalized, zero := normalize(vec)

	return Extraction{
		Vector:   normalized,
		Quality:  Quality(geom),
		ZeroNorm: zero,
	}
}

// Quality 检测完整度评分，范围 [0,1]，调用方据此决定是否重新采集
func Quality(geom model.FaceGeometry) float64 {
	landmarks := 0
	for _, lt := range model.LandmarkTypes {
		if _, ok := geom.Landmarks[lt]; ok {
			landmarks++
		}
	}

	contours := 0
	for _, ct := range model.ContourTypes {
		if len(geom.Contours[ct]) > 0 {
			contours++
		}
	}

	return landmarkQualityWeight*float64(landmarks)/float64(len(model.LandmarkTypes)) +
		contourQualityWeight*float64(contours)/float64(len(model.ContourTypes))
}

func boxSides(b model.BoundingBox) (float64, float64) {
	w, h := b.Width, b.Height
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	return w, h
}

func identityRatios(lm map[model.LandmarkType]model.Point, w, h float64) []float64 {
	get := func(t model.LandmarkType) (model.Point, bool) {
		p, ok := lm[t]
		return p, ok
	}

	leftEye, hasLeftEye := get(model.LandmarkLeftEye)
	rightEye, hasRightEye := get(model.LandmarkRightEye)
	nose, hasNose := get(model.LandmarkNoseBase)
	bottomMouth, hasBottomMouth := get(model.LandmarkBottomMouth)
	leftMouth, hasLeftMouth := get(model.LandmarkLeftMouth)
	rightMouth, hasRightMouth := get(model.LandmarkRightMouth)
	leftCheek, hasLeftCheek := get(model.LandmarkLeftCheek)
	rightCheek, hasRightCheek := get(model.LandmarkRightCheek)
	leftEar, hasLeftEar := get(model.LandmarkLeftEar)
	rightEar, hasRightEar := get(model.LandmarkRightEar)

	interEye := DefaultInterEyeRatio
	eyeAsym := DefaultEyeAsymmetry
	if hasLeftEye && hasRightEye {
		interEye = dist(leftEye, rightEye) / w
		eyeAsym = math.Abs(leftEye.Y-rightEye.Y) / h
	}

	noseMouth := DefaultNoseMouthRatio
	if hasNose && hasBottomMouth {
		noseMouth = dist(nose, bottomMouth) / h
	}

	eyeNose := DefaultEyeNoseRatio
	if hasLeftEye && hasRightEye && hasNose {
		mid := model.Point{X: (leftEye.X + rightEye.X) / 2, Y: (leftEye.Y + rightEye.Y) / 2}
		eyeNose = dist(mid, nose) / h
	}

	mouthWidth := DefaultMouthWidthRatio
	if hasLeftMouth && hasRightMouth {
		mouthWidth = dist(leftMouth, rightMouth) / w
	}

	cheekAsym := DefaultCheekAsymmetry
	if hasLeftCheek && hasRightCheek && hasNose {
		cheekAsym = math.Abs(dist(leftCheek, nose)-dist(rightCheek, nose)) / w
	}

	earEye := DefaultEarEyeRatio
	var sum float64
	var n int
	if hasLeftEar && hasLeftEye {
		sum += dist(leftEar, leftEye)
		n++
	}
	if hasRightEar && hasRightEye {
		sum += dist(rightEar, rightEye)
		n++
	}
	if n > 0 {
		earEye = sum / float64(n) / w
	}

	return []float64{interEye, eyeAsym, noseMouth, eyeNose, mouthWidth, cheekAsym, earEye}
}

// contourSignature 按等间隔下标采样外轮廓，点数不足时全部填零
func contourSignature(points []model.Point, center model.Point, w, h float64) []float64 {
	out := make([]float64, ContourSamples*2)
	if len(points) < ContourSamples {
		return out
	}
	for i := 0; i < ContourSamples; i++ {
		p := points[i*len(points)/ContourSamples]
		out[2*i] = (p.X - center.X) / w
		out[2*i+1] = (p.Y - center.Y) / h
	}
	return out
}

// eyebrowCurvature 中点相对两端连线的竖直偏移
func eyebrowCurvature(points []model.Point, h float64) float64 {
	if len(points) < 3 {
		return 0
	}
	first, last := points[0], points[len(points)-1]
	mid := points[len(points)/2]

	chordY := (first.Y + last.Y) / 2
	if dx := last.X - first.X; dx != 0 {
		t := (mid.X - first.X) / dx
		chordY = first.Y + t*(last.Y-first.Y)
	}
	return (mid.Y - chordY) / h
}

func fitDimension(vec []float64, dim int) []float64 {
	if len(vec) >= dim {
		return vec[:dim]
	}
	out := make([]float64, dim)
	copy(out, vec)
	return out
}

func normalize(vec []float64) ([]float64, bool) {
	n := norm(vec)
	if n == 0 {
		return vec, true
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v / n
	}
	return out, false
}

func dist(a, b model.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

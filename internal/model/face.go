package model

// LandmarkType 人脸关键点类型
type LandmarkType string

const (
	LandmarkLeftEye     LandmarkType = "left_eye"
	LandmarkRightEye    LandmarkType = "right_eye"
	LandmarkNoseBase    LandmarkType = "nose_base"
	LandmarkBottomMouth LandmarkType = "bottom_mouth"
	LandmarkLeftMouth   LandmarkType = "left_mouth"
	LandmarkRightMouth  LandmarkType = "right_mouth"
	LandmarkLeftCheek   LandmarkType = "left_cheek"
	LandmarkRightCheek  LandmarkType = "right_cheek"
	LandmarkLeftEar     LandmarkType = "left_ear"
	LandmarkRightEar    LandmarkType = "right_ear"
)

// LandmarkTypes 固定顺序，向量布局依赖该顺序
var LandmarkTypes = []LandmarkType{
	LandmarkLeftEye,
	LandmarkRightEye,
	LandmarkNoseBase,
	LandmarkBottomMouth,
	LandmarkLeftMouth,
	LandmarkRightMouth,
	LandmarkLeftCheek,
	LandmarkRightCheek,
	LandmarkLeftEar,
	LandmarkRightEar,
}

// ContourType 人脸轮廓类型
type ContourType string

const (
	ContourFace               ContourType = "face"
	ContourLeftEyebrowTop     ContourType = "left_eyebrow_top"
	ContourLeftEyebrowBottom  ContourType = "left_eyebrow_bottom"
	ContourRightEyebrowTop    ContourType = "right_eyebrow_top"
	ContourRightEyebrowBottom ContourType = "right_eyebrow_bottom"
	ContourLeftEye            ContourType = "left_eye"
	ContourRightEye           ContourType = "right_eye"
	ContourUpperLipTop        ContourType = "upper_lip_top"
	ContourUpperLipBottom     ContourType = "upper_lip_bottom"
	ContourLowerLipTop        ContourType = "lower_lip_top"
	ContourLowerLipBottom     ContourType = "lower_lip_bottom"
	ContourNoseBridge         ContourType = "nose_bridge"
	ContourNoseBottom         ContourType = "nose_bottom"
	ContourLeftCheek          ContourType = "left_cheek"
	ContourRightCheek         ContourType = "right_cheek"
)

var ContourTypes = []ContourType{
	ContourFace,
	ContourLeftEyebrowTop,
	ContourLeftEyebrowBottom,
	ContourRightEyebrowTop,
	ContourRightEyebrowBottom,
	ContourLeftEye,
	ContourRightEye,
	ContourUpperLipTop,
	ContourUpperLipBottom,
	ContourLowerLipTop,
	ContourLowerLipBottom,
	ContourNoseBridge,
	ContourNoseBottom,
	ContourLeftCheek,
	ContourRightCheek,
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox 人脸框，Left/Top 为左上角
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center 返回人脸框中心点
func (b BoundingBox) Center() Point {
	return Point{X: b.Left + b.Width/2, Y: b.Top + b.Height/2}
}

// HeadAngles 头部欧拉角（度）
type HeadAngles struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FaceGeometry 人脸检测结果，由设备端检测器产出
type FaceGeometry struct {
	Landmarks map[LandmarkType]Point  `json:"landmarks"`
	Contours  map[ContourType][]Point `json:"contours"`
	Box       BoundingBox             `json:"box"`
	Angles    HeadAngles              `json:"angles"`
}

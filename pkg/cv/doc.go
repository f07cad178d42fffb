// Package cv implements the kiosk's camera-side collaborators on top of
// OpenCV through gocv: the webcam frame source, the YuNet face locator and
// the ONNX age regressor.
//
// Everything here needs OpenCV 4.x with the dnn and objdetect modules. The
// rest of the module depends only on the interfaces in pkg/pipeline,
// pkg/detection and pkg/age, so it builds and tests without cgo.
package cv

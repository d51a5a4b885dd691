package registry

import (
	"context"
	"path/filepath"
)

// Face detector bundle files.
const (
	FaceConfigFile = "deploy.prototxt"
	FaceModelFile  = "res10_300x300_ssd_iter_140000.caffemodel"
)

// BundleFile is one file of a multi-file download.
type BundleFile struct {
	Name string
	URL  string
}

// FaceBundle lists the files of the OpenCV res10 SSD face detector.
func FaceBundle() []BundleFile {
	return []BundleFile{
		{
			Name: FaceConfigFile,
			URL:  "https://raw.githubusercontent.com/opencv/opencv/4.x/samples/dnn/face_detector/deploy.prototxt",
		},
		{
			Name: FaceModelFile,
			URL:  "https://raw.githubusercontent.com/opencv/opencv_3rdparty/dnn_samples_face_detector_20170830/res10_300x300_ssd_iter_140000.caffemodel",
		},
	}
}

// FetchBundle downloads every missing bundle file into dir and returns dir.
func (d *Downloader) FetchBundle(ctx context.Context, dir string, files []BundleFile) (string, error) {
	for _, f := range files {
		if err := d.Fetch(ctx, f.URL, filepath.Join(dir, f.Name)); err != nil {
			return "", err
		}
	}
	return dir, nil
}

package domain

// Image is a downloaded image body.
type Image struct {
	Data        []byte
	ContentType string
}

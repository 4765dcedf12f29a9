package codec

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"
	"reflect"

	"go.dedis.ch/polybson/serde"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"golang.org/x/xerrors"
)

var imageType = reflect.TypeOf((*image.Image)(nil)).Elem()

// imageCodec is the codec of the images. An image is stored as a PNG binary
// which is lossless for the supported pixel formats. The origin of the bounds
// is not kept.
//
// - implements codec.Codec
type imageCodec struct{}

// Encode implements codec.Codec.
func (imageCodec) Encode(ctx *Context, vw bsonrw.ValueWriter, value interface{}) error {
	img, ok := value.(image.Image)
	if !ok {
		return xerrors.Errorf("type %T: %w", value, serde.ErrNoCodec)
	}

	buffer := new(bytes.Buffer)

	err := png.Encode(buffer, img)
	if err != nil {
		return xerrors.Errorf("failed to encode image: %v", err)
	}

	return vw.WriteBinary(buffer.Bytes())
}

// Decode implements codec.Codec. The image is converted to the given type when
// the decoder returns another pixel format.
func (imageCodec) Decode(ctx *Context, vr bsonrw.ValueReader, t reflect.Type) (interface{}, error) {
	if vr.Type() != bsontype.Binary {
		return nil, xerrors.Errorf("image with wire type %v: %w", vr.Type(),
			serde.ErrUnsupportedWireType)
	}

	data, _, err := vr.ReadBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to read image: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Errorf("failed to decode image: %v", err)
	}

	return convertImage(img, t), nil
}

// DiscriminatorCompatible implements codec.Codec. The image is wrapped.
func (imageCodec) DiscriminatorCompatible() bool {
	return false
}

func convertImage(img image.Image, t reflect.Type) image.Image {
	if t == nil || reflect.TypeOf(img) == t {
		return img
	}

	var dst draw.Image

	switch t {
	case reflect.TypeOf(&image.RGBA{}):
		dst = image.NewRGBA(img.Bounds())
	case reflect.TypeOf(&image.NRGBA{}):
		dst = image.NewNRGBA(img.Bounds())
	case reflect.TypeOf(&image.Gray{}):
		dst = image.NewGray(img.Bounds())
	default:
		return img
	}

	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)

	return dst
}

package imgx

import (
	"bytes"
	"errors"
	"image"
	"image/draw"
	_ "image/gif" // 注册 GIF 解码器
	"image/jpeg"
	_ "image/png" // 注册 PNG 解码器（封面不一定总是 jpeg）
)

// MaxPosterWidth 是导出封面的最大宽度；更宽的图片按比例缩小。
const MaxPosterWidth = 1000

// PosterJPEG 把封面图片统一编码为 JPEG（用于 poster.jpg）。
//
// 约束：
// - 输入允许是 JPEG/PNG/GIF（依赖标准库解码器）
// - 输出固定为 JPEG；宽度超过 maxWidth 时按最近邻缩小，保持宽高比
// - maxWidth<=0 表示不缩放
func PosterJPEG(src []byte, maxWidth int) ([]byte, error) {
	if len(src) == 0 {
		return nil, errors.New("封面为空")
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}

	var dst *image.RGBA
	if maxWidth > 0 && b.Dx() > maxWidth {
		h := b.Dy() * maxWidth / b.Dx()
		if h < 1 {
			h = 1
		}
		dst = image.NewRGBA(image.Rect(0, 0, maxWidth, h))
		for y := 0; y < h; y++ {
			sy := b.Min.Y + y*b.Dy()/h
			for x := 0; x < maxWidth; x++ {
				dst.Set(x, y, img.At(b.Min.X+x*b.Dx()/maxWidth, sy))
			}
		}
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

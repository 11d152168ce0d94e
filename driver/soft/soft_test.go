// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package soft

import (
	"testing"

	"github.com/m3core/real3d/driver"
)

func newGPU(t *testing.T) driver.GPU {
	t.Helper()
	d := &Driver{}
	g, err := d.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return g
}

func TestBufferRoundTrip(t *testing.T) {
	g := newGPU(t)
	buf, err := g.NewBuffer(256, true, driver.UVertexData)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	defer buf.Destroy()
	if buf.Cap() != 256 {
		t.Fatalf("Cap: have %d, want 256", buf.Cap())
	}
	b := buf.Bytes()
	if len(b) != 256 {
		t.Fatalf("Bytes: have len %d, want 256", len(b))
	}
	b[0] = 0x42
	if buf.Bytes()[0] != 0x42 {
		t.Fatal("Bytes: write not reflected in subsequent read")
	}
}

func TestImageUpload(t *testing.T) {
	g := newGPU(t)
	img, err := g.NewImage(driver.RGBA8un, driver.Dim3D{Width: 64, Height: 64}, 1, 1, 1, driver.UShaderSample)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	defer img.Destroy()

	buf, _ := g.NewBuffer(32*32*4, true, driver.UGeneric)
	src := buf.Bytes()
	for i := range src {
		src[i] = 0xAB
	}

	cb, _ := g.NewCmdBuffer()
	cb.Begin()
	cb.BeginBlit(false)
	cb.CopyBufToImg(&driver.BufImgCopy{
		Buf:    buf,
		Stride: [2]int64{32, 32},
		Img:    img,
		ImgOff: driver.Off3D{X: 0, Y: 0},
		Size:   driver.Dim3D{Width: 32, Height: 32},
	})
	cb.EndBlit()
	cb.End()

	si := img.(*Image)
	dst := si.Bytes(0, 0)
	if dst[0] != 0xAB || dst[4] != 0xAB {
		t.Fatal("CopyBufToImg: upload not reflected in image storage")
	}
	// A pixel outside the 32x32 region must be untouched.
	offOutside := (40*64 + 0) * 4
	if dst[offOutside] != 0 {
		t.Fatal("CopyBufToImg: wrote outside the requested region")
	}
}

func TestDrawCallOrder(t *testing.T) {
	g := newGPU(t)
	cb, _ := g.NewCmdBuffer()
	cb.Begin()
	cb.SetViewport([]driver.Viewport{{Width: 496, Height: 384}})
	cb.Draw(3, 1, 0, 0)
	cb.Draw(4, 1, 3, 0)
	cb.End()

	sc := cb.(*CmdBuffer)
	if len(sc.DrawCalls) != 2 {
		t.Fatalf("DrawCalls: have %d, want 2", len(sc.DrawCalls))
	}
	if sc.DrawCalls[0].VertCount != 3 || sc.DrawCalls[1].VertCount != 4 {
		t.Fatal("DrawCalls: recorded out of order")
	}
}

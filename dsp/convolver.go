package dsp

import (
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// convolver convolves one channel with a long impulse response using
// uniformly partitioned overlap-save convolution: the impulse response is
// cut into blockSize partitions, kept as spectra, and each incoming block is
// multiplied against the whole frequency-domain delay line. This keeps a
// ten-second response usable in the realtime path, where direct convolution
// would not be.
//
// Process must always be called with exactly blockSize samples; the chains
// guarantee that by running the engine at a fixed block size.
type convolver struct {
	blockSize int
	fftSize   int
	plan      *algofft.Plan[complex128]

	partitions [][]complex128 // impulse response spectra
	history    [][]complex128 // past input spectra, ring buffer
	historyPos int

	input   []float64    // sliding window of the last two input blocks
	scratch []complex128 // FFT work area
	acc     []complex128 // spectrum accumulator
}

func newConvolver(impulse []float32, blockSize int) (*convolver, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("convolver block size should be > 0, got %v", blockSize)
	}
	fftSize := blockSize * 2
	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("could not create FFT plan of size %v: %w", fftSize, err)
	}
	c := &convolver{
		blockSize: blockSize,
		fftSize:   fftSize,
		plan:      plan,
		input:     make([]float64, fftSize),
		scratch:   make([]complex128, fftSize),
		acc:       make([]complex128, fftSize),
	}
	numPartitions := (len(impulse) + blockSize - 1) / blockSize
	if numPartitions == 0 {
		numPartitions = 1
	}
	c.partitions = make([][]complex128, numPartitions)
	c.history = make([][]complex128, numPartitions)
	work := make([]complex128, fftSize)
	for p := 0; p < numPartitions; p++ {
		for i := range work {
			work[i] = 0
		}
		for i := 0; i < blockSize; i++ {
			idx := p*blockSize + i
			if idx < len(impulse) {
				work[i] = complex(float64(impulse[idx]), 0)
			}
		}
		c.partitions[p] = make([]complex128, fftSize)
		if err := plan.Forward(c.partitions[p], work); err != nil {
			return nil, fmt.Errorf("could not transform impulse partition %v: %w", p, err)
		}
		c.history[p] = make([]complex128, fftSize)
	}
	return c, nil
}

// Process convolves one block in place. len(buf) must equal blockSize.
func (c *convolver) Process(buf []float32) error {
	if len(buf) != c.blockSize {
		return fmt.Errorf("convolver expects blocks of %v samples, got %v", c.blockSize, len(buf))
	}
	// slide the input window one block forward
	copy(c.input, c.input[c.blockSize:])
	for i, v := range buf {
		c.input[c.blockSize+i] = float64(v)
	}
	for i, v := range c.input {
		c.scratch[i] = complex(v, 0)
	}
	c.historyPos = (c.historyPos + len(c.history) - 1) % len(c.history)
	if err := c.plan.Forward(c.history[c.historyPos], c.scratch); err != nil {
		return fmt.Errorf("could not transform input block: %w", err)
	}
	for i := range c.acc {
		c.acc[i] = 0
	}
	for p := range c.partitions {
		x := c.history[(c.historyPos+p)%len(c.history)]
		h := c.partitions[p]
		for i := range c.acc {
			c.acc[i] += x[i] * h[i]
		}
	}
	if err := c.inverse(c.acc); err != nil {
		return err
	}
	// overlap-save: the first blockSize samples are circular garbage
	for i := range buf {
		buf[i] = float32(real(c.acc[c.blockSize+i]))
	}
	return nil
}

// inverse computes the inverse FFT in place using the conjugation identity
// ifft(x) = conj(fft(conj(x)))/N, so a forward-only plan suffices.
func (c *convolver) inverse(x []complex128) error {
	for i := range x {
		c.scratch[i] = complex(real(x[i]), -imag(x[i]))
	}
	if err := c.plan.Forward(x, c.scratch); err != nil {
		return fmt.Errorf("could not inverse transform: %w", err)
	}
	n := complex(float64(c.fftSize), 0)
	for i := range x {
		x[i] = complex(real(x[i]), -imag(x[i])) / n
	}
	return nil
}

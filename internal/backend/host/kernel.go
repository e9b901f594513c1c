package host

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/fmha/internal/dnn"
)

type kernel[A dnn.Args] struct {
	family family
	desc   dnn.AlgorithmDesc
	cfg    dnn.FusedMHAOpConfig
}

type operands struct {
	q, k, v, mask, bias, out dnn.DeviceMemory
}

func (k *kernel[A]) ToAlgorithmDesc() dnn.AlgorithmDesc {
	return k.desc.Clone()
}

func (k *kernel[A]) Run(stream dnn.Stream, profile *dnn.ProfileResult, scratch dnn.DeviceMemory, args A) error {
	hs, ok := stream.(*Stream)
	if !ok {
		return fmt.Errorf("%w: host kernel on %T", dnn.ErrInvalidArgument, stream)
	}
	ops := unpack(args)
	if err := k.checkBuffers(ops, scratch); err != nil {
		return err
	}
	workers := hs.Workers()
	if profile == nil {
		return hs.Enqueue(k.family.String(), func() error {
			return attention(k.cfg, ops, workers)
		})
	}

	var elapsed time.Duration
	err := hs.Enqueue(k.family.String(), func() error {
		start := time.Now()
		err := attention(k.cfg, ops, workers)
		elapsed = time.Since(start)
		return err
	})
	if err != nil {
		return err
	}
	if err := hs.Synchronize(); err != nil {
		return err
	}
	profile.Record(k.desc, elapsed, scratch.Size())
	return nil
}

func unpack(args any) operands {
	switch a := args.(type) {
	case dnn.SoftmaxArgs:
		return operands{q: a.LhsBMM1, k: a.RhsBMM1, v: a.RhsBMM2, out: a.Output}
	case dnn.ScaleMaskSoftmaxArgs:
		return operands{q: a.LhsBMM1, k: a.RhsBMM1, v: a.RhsBMM2, mask: a.Mask, out: a.Output}
	case dnn.ScaleBiasSoftmaxArgs:
		return operands{q: a.LhsBMM1, k: a.RhsBMM1, v: a.RhsBMM2, bias: a.Bias, out: a.Output}
	case dnn.ScaleBiasMaskSoftmaxArgs:
		return operands{q: a.LhsBMM1, k: a.RhsBMM1, v: a.RhsBMM2, mask: a.Mask, bias: a.Bias, out: a.Output}
	default:
		panic(fmt.Sprintf("host: unknown args %T", args))
	}
}

func (k *kernel[A]) checkBuffers(ops operands, scratch dnn.DeviceMemory) error {
	check := func(name string, mem dnn.DeviceMemory, want uint64) error {
		if mem.IsNull() {
			return fmt.Errorf("%w: %s buffer is null", dnn.ErrInvalidArgument, name)
		}
		if mem.Size() < want {
			return fmt.Errorf("%w: %s buffer holds %d bytes, need %d", dnn.ErrInvalidArgument, name, mem.Size(), want)
		}
		return nil
	}
	if err := check("lhs_bmm1", ops.q, k.cfg.LhsBMM1.Tensor.SizeInBytes()); err != nil {
		return err
	}
	if err := check("rhs_bmm1", ops.k, k.cfg.RhsBMM1.Tensor.SizeInBytes()); err != nil {
		return err
	}
	if err := check("rhs_bmm2", ops.v, k.cfg.RhsBMM2.Tensor.SizeInBytes()); err != nil {
		return err
	}
	if err := check("output", ops.out, k.cfg.Output.SizeInBytes()); err != nil {
		return err
	}
	if k.cfg.Mask != nil {
		if err := check("mask", ops.mask, k.cfg.Mask.SizeInBytes()); err != nil {
			return err
		}
	}
	if k.cfg.Bias != nil {
		if err := check("bias", ops.bias, k.cfg.Bias.SizeInBytes()); err != nil {
			return err
		}
	}
	if ws := k.desc.Workspace(); ws > 0 && scratch.Size() < ws {
		return fmt.Errorf("%w: scratch holds %d bytes, algorithm needs %d", dnn.ErrInvalidArgument, scratch.Size(), ws)
	}
	return nil
}

// attention computes out = dropout(softmax(scale*q*k + bias, mask)) * v for
// every batch entry.
func attention(cfg dnn.FusedMHAOpConfig, ops operands, workers int) error {
	order, err := bmm2BatchOrder(cfg)
	if err != nil {
		return err
	}
	q, err := gatherOperand(cfg.LhsBMM1, true, ops.q, nil)
	if err != nil {
		return err
	}
	k, err := gatherOperand(cfg.RhsBMM1, false, ops.k, nil)
	if err != nil {
		return err
	}
	v, err := gatherOperand(cfg.RhsBMM2, false, ops.v, order)
	if err != nil {
		return err
	}

	batchDims := cfg.LhsBMM1.BatchDimSizes()
	scoreDims := append(append([]int64(nil), batchDims...), cfg.LhsBMM1.NonContractingSize(), cfg.RhsBMM1.NonContractingSize())

	var mask, bias []float32
	if cfg.Mask != nil {
		if mask, err = gatherBroadcast(*cfg.Mask, ops.mask, scoreDims); err != nil {
			return err
		}
	}
	if cfg.Bias != nil {
		if bias, err = gatherBroadcast(*cfg.Bias, ops.bias, scoreDims); err != nil {
			return err
		}
	}

	batch := cfg.LhsBMM1.BatchSize()
	m := cfg.LhsBMM1.NonContractingSize()
	kd := cfg.LhsBMM1.ContractingSize()
	n := cfg.RhsBMM1.NonContractingSize()
	d := cfg.RhsBMM2.NonContractingSize()
	out := make([]float32, batch*m*d)

	var g errgroup.Group
	g.SetLimit(workers)
	for b := range batch {
		g.Go(func() error {
			h := head{
				cfg:  cfg,
				b:    b,
				m:    m,
				k:    kd,
				n:    n,
				d:    d,
				q:    q[b*m*kd : (b+1)*m*kd],
				kt:   k[b*kd*n : (b+1)*kd*n],
				v:    v[b*n*d : (b+1)*n*d],
				out:  out[b*m*d : (b+1)*m*d],
				mask: window(mask, b, m*n),
				bias: window(bias, b, m*n),
			}
			h.run()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	dst := make([]float32, cfg.Output.NumElements())
	scatterStrided(dst, out, permuteBatch(cfg.Output.Dims, order), permuteBatch(cfg.Output.Strides(), order))
	return encodeFloats(cfg.Output.Type, Bytes(ops.out), dst)
}

func window(v []float32, b, size int64) []float32 {
	if v == nil {
		return nil
	}
	return v[b*size : (b+1)*size]
}

// head is one batch entry: q is [m,k], kt is [k,n], v is [n,d].
type head struct {
	cfg           dnn.FusedMHAOpConfig
	b, m, k, n, d int64
	q, kt, v, out []float32
	mask, bias    []float32
}

func (h head) run() {
	scale := float32(h.cfg.Scale)
	var rng *rand.Rand
	var keep float32
	var rate float64
	if h.cfg.DropoutRate != nil && *h.cfg.DropoutRate > 0 {
		rate = *h.cfg.DropoutRate
		keep = float32(1 / (1 - rate))
		var seed uint64
		if h.cfg.Seed != nil {
			seed = uint64(*h.cfg.Seed)
		}
		rng = rand.New(rand.NewPCG(seed, uint64(h.b)))
	}

	row := make([]float32, h.n)
	for i := range h.m {
		for j := range h.n {
			var s float32
			for t := range h.k {
				s += h.q[i*h.k+t] * h.kt[t*h.n+j]
			}
			s *= scale
			if h.bias != nil {
				s += h.bias[i*h.n+j]
			}
			if h.mask != nil && h.mask[i*h.n+j] == 0 {
				s = float32(math.Inf(-1))
			}
			row[j] = s
		}
		if !h.cfg.BMMOnly {
			softmax(row)
		}
		if rng != nil {
			for j := range row {
				if rng.Float64() < rate {
					row[j] = 0
				} else {
					row[j] *= keep
				}
			}
		}
		for c := range h.d {
			var o float32
			for j := range h.n {
				o += row[j] * h.v[j*h.d+c]
			}
			h.out[i*h.d+c] = o
		}
	}
}

// softmax normalises row in place. A fully masked row becomes zeros.
func softmax(row []float32) {
	maxVal := float32(math.Inf(-1))
	for _, v := range row {
		maxVal = max(maxVal, v)
	}
	if math.IsInf(float64(maxVal), -1) {
		clear(row)
		return
	}
	var sum float32
	for i, v := range row {
		e := float32(math.Exp(float64(v - maxVal)))
		row[i] = e
		sum += e
	}
	for i := range row {
		row[i] /= sum
	}
}

// gatherOperand reads desc as dense [batch..., rows, cols]. order, when set,
// picks the operand batch axis for each bmm1 batch axis.
func gatherOperand(desc dnn.MatmulTensorDescriptor, isLhs bool, mem dnn.DeviceMemory, order []int) ([]float32, error) {
	src, err := decodeFloats(desc.Tensor.Type, Bytes(mem), desc.Tensor.NumElements())
	if err != nil {
		return nil, err
	}
	dims := permuteBatch(desc.CompatibleDims(isLhs), order)
	strides := permuteBatch(desc.CompatibleStrides(isLhs), order)
	return gatherStrided(src, dims, strides), nil
}

// bmm2BatchOrder maps each bmm1 batch axis to the bmm2 batch axis carrying
// it. The intermediate must be laid out as [bmm1 batch..., q, kv] with q free
// and kv contracted in bmm2.
func bmm2BatchOrder(cfg dnn.FusedMHAOpConfig) ([]int, error) {
	nb := len(cfg.LhsBMM1.BatchDims)
	inter := cfg.IntermediateLhsBMM2
	if len(inter.BatchDims) != nb || inter.NonContractingDim() != int64(nb) || inter.ContractingDims[0] != int64(nb+1) {
		return nil, fmt.Errorf("%w: bmm2 batches over %s, want the bmm1 batch dims", dnn.ErrUnsupported, inter)
	}
	order := make([]int, nb)
	for j, dim := range inter.BatchDims {
		order[dim] = j
	}
	return order, nil
}

// permuteBatch reorders the leading len(order) entries of v so entry i comes
// from v[order[i]]. The trailing entries are kept.
func permuteBatch(v []int64, order []int) []int64 {
	out := slices.Clone(v)
	for i, j := range order {
		out[i] = v[j]
	}
	return out
}

// gatherBroadcast reads desc expanded to dims. Size-1 dimensions repeat.
func gatherBroadcast(desc dnn.TensorDescriptor, mem dnn.DeviceMemory, dims []int64) ([]float32, error) {
	src, err := decodeFloats(desc.Type, Bytes(mem), desc.NumElements())
	if err != nil {
		return nil, err
	}
	strides := desc.Strides()
	for i := range strides {
		if desc.Dims[i] == 1 && dims[i] != 1 {
			strides[i] = 0
		}
	}
	return gatherStrided(src, dims, strides), nil
}

// gatherStrided copies src into a dense row-major array of dims, reading
// element idx at sum(idx[i]*strides[i]).
func gatherStrided(src []float32, dims, strides []int64) []float32 {
	total := int64(1)
	for _, d := range dims {
		total *= d
	}
	out := make([]float32, total)
	walkStrided(dims, strides, func(i, off int64) { out[i] = src[off] })
	return out
}

// scatterStrided is the inverse of gatherStrided.
func scatterStrided(dst, dense []float32, dims, strides []int64) {
	walkStrided(dims, strides, func(i, off int64) { dst[off] = dense[i] })
}

func walkStrided(dims, strides []int64, visit func(i, off int64)) {
	total := int64(1)
	for _, d := range dims {
		total *= d
	}
	idx := make([]int64, len(dims))
	var off int64
	for i := range total {
		visit(i, off)
		for a := len(dims) - 1; a >= 0; a-- {
			idx[a]++
			off += strides[a]
			if idx[a] < dims[a] {
				break
			}
			off -= strides[a] * dims[a]
			idx[a] = 0
		}
	}
}

package dnn

// Stream is an ordered device work queue. Work enqueued on a stream runs
// asynchronously relative to the caller.
type Stream interface {
	// DNN returns the fused kernel support of the stream's device, or nil.
	DNN() Support
	// Err returns the first device error observed on the stream.
	Err() error
}

// FusedMHAOpConfig is what a device needs to build a fused MHA kernel.
type FusedMHAOpConfig struct {
	// BMMOnly chains the two matmuls without a softmax between them.
	BMMOnly bool

	LhsBMM1             MatmulTensorDescriptor
	RhsBMM1             MatmulTensorDescriptor
	RhsBMM2             MatmulTensorDescriptor
	IntermediateLhsBMM2 MatmulTensorDescriptor
	Output              TensorDescriptor

	Mask *TensorDescriptor
	Bias *TensorDescriptor

	Scale       float64
	DropoutRate *float64
	Seed        *int64
}

// SoftmaxArgs are the buffers of the softmax family.
type SoftmaxArgs struct {
	LhsBMM1 DeviceMemory
	RhsBMM1 DeviceMemory
	RhsBMM2 DeviceMemory
	Output  DeviceMemory
}

// ScaleMaskSoftmaxArgs are the buffers of the masked family.
type ScaleMaskSoftmaxArgs struct {
	LhsBMM1 DeviceMemory
	RhsBMM1 DeviceMemory
	RhsBMM2 DeviceMemory
	Mask    DeviceMemory
	Output  DeviceMemory
}

// ScaleBiasSoftmaxArgs are the buffers of the biased family.
type ScaleBiasSoftmaxArgs struct {
	LhsBMM1 DeviceMemory
	RhsBMM1 DeviceMemory
	RhsBMM2 DeviceMemory
	Bias    DeviceMemory
	Output  DeviceMemory
}

// ScaleBiasMaskSoftmaxArgs are the buffers of the biased and masked family.
type ScaleBiasMaskSoftmaxArgs struct {
	LhsBMM1 DeviceMemory
	RhsBMM1 DeviceMemory
	RhsBMM2 DeviceMemory
	Mask    DeviceMemory
	Bias    DeviceMemory
	Output  DeviceMemory
}

// Args is the closed set of fused MHA call signatures.
type Args interface {
	SoftmaxArgs | ScaleMaskSoftmaxArgs | ScaleBiasSoftmaxArgs | ScaleBiasMaskSoftmaxArgs
}

// Kernel is a materialised fused MHA kernel bound to one algorithm.
type Kernel[A Args] interface {
	ToAlgorithmDesc() AlgorithmDesc
	// Run enqueues the kernel on stream. A non-nil profile asks the device to
	// time the execution.
	Run(stream Stream, profile *ProfileResult, scratch DeviceMemory, args A) error
}

// Support builds fused MHA kernels for a device.
type Support interface {
	FusedMHASoftmaxRunnerFromDesc(stream Stream, desc AlgorithmDesc, cfg FusedMHAOpConfig) (Kernel[SoftmaxArgs], error)
	FusedMHAScaleMaskSoftmaxRunnerFromDesc(stream Stream, desc AlgorithmDesc, cfg FusedMHAOpConfig) (Kernel[ScaleMaskSoftmaxArgs], error)
	FusedMHAScaleBiasSoftmaxRunnerFromDesc(stream Stream, desc AlgorithmDesc, cfg FusedMHAOpConfig) (Kernel[ScaleBiasSoftmaxArgs], error)
	FusedMHAScaleBiasMaskSoftmaxRunnerFromDesc(stream Stream, desc AlgorithmDesc, cfg FusedMHAOpConfig) (Kernel[ScaleBiasMaskSoftmaxArgs], error)
}

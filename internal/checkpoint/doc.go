// Package checkpoint stores DeepVO weights in the .born v2 container.
//
// File layout:
//
//	0x00  "BORN"
//	0x04  version (uint32, 2)
//	0x08  flags (uint32)
//	0x0C  reserved
//	0x10  JSON header size (uint64)
//	0x18  data size (uint64)
//	0x20  SHA-256 of the data section (32 bytes)
//	0x40  JSON header, zero padded to a 64-byte boundary
//	....  tensor data, little-endian, in header order
//
// Tensors are written in name order, so the same weights always produce
// the same data section and checksum. Batch norm running statistics are
// stored next to the parameters.
//
// Example:
//
//	err := checkpoint.Save("best.born", model, checkpoint.Meta{
//	    Training: &checkpoint.TrainingMeta{Epoch: 3, Loss: 0.12},
//	})
//
//	header, err := checkpoint.Load("best.born", model)
package checkpoint

// Package vcm provides recyclable pools for Vulkan command buffers, fences,
// and semaphores, plus a batched transfer pipeline that submits copy work to
// a queue and reclaims its resources once the GPU signals completion, and a
// signature-keyed descriptor set cache.
//
// Command buffers are pooled per goroutine: the pool map is locked only for
// lookup and insert, and the pool a goroutine gets back is used with no
// further locking. Fence and semaphore pools are shared and always locked.
// All Vulkan access goes through the narrow collaborator interfaces declared
// in this package; the vcm/vulkan subpackage wires them to vkngwrapper.
package vcm

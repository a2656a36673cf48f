/*
go-cann provides device arrays and asynchronous streams for running image
processing and arithmetic kernels on an NPU, in the spirit of the OpenCV
cann module.

A process initializes a single Context, selects a device and uploads gocv
Mats into NpuMat arrays resident in device memory.  Operations are methods on
the Context, by default they run on the device's null stream and are complete
when the call returns.  Given WithStream they are queued and the call returns
immediately, results are valid once the stream has been synchronized with
WaitForCompletion or an Event.

The kernels are executed by a software device on host goroutines, so the
package runs anywhere gocv does.

See example usage in the cmd/cann subdirectory.
*/
package cann

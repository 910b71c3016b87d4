package metadata

/** @brief Describes a type of job */
type JobType int

const (
	/**
	 * @brief A general job that does not have any specific thread requirements.
	 * This means it matters little which job worker this job runs on.
	 */
	JOB_TYPE_GENERAL JobType = 0x02
	/**
	 * @brief A resource loading job, e.g. reading a DDS file or a shader
	 * bytecode blob from disk.
	 */
	JOB_TYPE_RESOURCE_LOAD JobType = 0x04
	/**
	 * @brief Jobs recording GPU work. These run on their own command
	 * allocator and are joined before the owning frame executes.
	 */
	JOB_TYPE_GPU_RESOURCE JobType = 0x08
)

/** @brief The entry point of a job. The returned value is handed to OnComplete. */
type JobStart func(input interface{}) (interface{}, error)

/** @brief Invoked with the output of a job that succeeded. */
type JobOnComplete func(output interface{})

/** @brief Invoked with the error of a job that failed. */
type JobOnFailure func(err error)

/**
 * @brief Describes a job to be run by the job system.
 */
type JobTask struct {
	/** @brief Shows up in logs when the job fails. */
	Name string
	/** @brief The type of job. */
	JobType JobType
	/** @brief Data to be passed to the entry point upon execution. */
	InputParams interface{}
	/** @brief Required. */
	OnStart JobStart
	/** @brief Optional. */
	OnComplete JobOnComplete
	/** @brief Optional. */
	OnFailure JobOnFailure
	/** @brief Always invoked last, whether the job failed or not. Optional. */
	OnCompletionCallback func()
}

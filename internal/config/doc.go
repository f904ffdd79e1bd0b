// Package config defines configuration structures for the packer CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (PACKER_ prefix)
//   - YAML configuration file
//
// Later sources override earlier ones; [Config.Validate] runs last.
//
// # Structure
//
//	type Config struct {
//	    BaseDir          string
//	    PublicURL        string
//	    DBPath           string
//	    SourceCategory   string
//	    OutputCategory   string
//	    MaxPartSizeMB    int
//	    MaxFiles         int
//	    MaxTotalSize     int64
//	    BufferSize       int64
//	    CancelCheckEvery int
//	    SplitMode        string
//	    JobTimeout       time.Duration
//	    Admission        AdmissionConfig
//	    Log              LogConfig
//	}
//
// # Example
//
//	base_dir: /srv/static
//	public_url: https://files.example.com
//	max_part_size_mb: 100
//	buffer_size: 1MiB
//	split_mode: entry
//	admission:
//	  max_concurrent: 1
//	  cpu_limit: 80
package config

package catalog

var both = []DatabaseType{PHY, BGC}
var phyOnly = []DatabaseType{PHY}
var bgcOnly = []DatabaseType{BGC}

// defaultVariables is the bundled CrocoLake variable registry. The
// identifier columns (DB_NAME, PLATFORM_NUMBER, position, timestamp) are
// mandatory: they survive any variable selection.
var defaultVariables = []Variable{
	{Name: "DB_NAME", LongName: "Originating database", Unit: "1", Mandatory: true, Types: both},
	{Name: "PLATFORM_NUMBER", LongName: "Platform identifier", Unit: "1", Mandatory: true, Types: both},
	{Name: "LATITUDE", LongName: "Latitude of the observation", Unit: "degrees_north", Mandatory: true, Types: both},
	{Name: "LONGITUDE", LongName: "Longitude of the observation", Unit: "degrees_east", Mandatory: true, Types: both},
	{Name: "POSITION_QC", LongName: "Quality flag on position", Unit: "1", Types: both},
	{Name: "JULD", LongName: "Observation timestamp", Unit: "UTC", Mandatory: true, Types: both},
	{Name: "JULD_QC", LongName: "Quality flag on timestamp", Unit: "1", Types: both},

	{Name: "PRES", LongName: "Sea water pressure", Unit: "decibar", Types: both},
	{Name: "PRES_QC", LongName: "Quality flag on PRES", Unit: "1", Types: both},
	{Name: "PRES_ERROR", LongName: "Uncertainty on PRES", Unit: "decibar", Types: both},
	{Name: "TEMP", LongName: "Sea water temperature", Unit: "degree_Celsius", Types: both},
	{Name: "TEMP_QC", LongName: "Quality flag on TEMP", Unit: "1", Types: both},
	{Name: "TEMP_ERROR", LongName: "Uncertainty on TEMP", Unit: "degree_Celsius", Types: both},
	{Name: "PSAL", LongName: "Practical salinity", Unit: "psu", Types: both},
	{Name: "PSAL_QC", LongName: "Quality flag on PSAL", Unit: "1", Types: both},
	{Name: "PSAL_ERROR", LongName: "Uncertainty on PSAL", Unit: "psu", Types: both},

	{Name: "DOXY", LongName: "Dissolved oxygen", Unit: "micromole/kg", Types: bgcOnly},
	{Name: "DOXY_QC", LongName: "Quality flag on DOXY", Unit: "1", Types: bgcOnly},
	{Name: "DOXY_ERROR", LongName: "Uncertainty on DOXY", Unit: "micromole/kg", Types: bgcOnly},
	{Name: "CHLA", LongName: "Chlorophyll-A", Unit: "mg/m3", Types: bgcOnly},
	{Name: "CHLA_QC", LongName: "Quality flag on CHLA", Unit: "1", Types: bgcOnly},
	{Name: "BBP700", LongName: "Particle backscattering at 700nm", Unit: "1/m", Types: bgcOnly},
	{Name: "BBP700_QC", LongName: "Quality flag on BBP700", Unit: "1", Types: bgcOnly},
	{Name: "PH_IN_SITU_TOTAL", LongName: "pH on total scale", Unit: "dimensionless", Types: bgcOnly},
	{Name: "PH_IN_SITU_TOTAL_QC", LongName: "Quality flag on PH_IN_SITU_TOTAL", Unit: "1", Types: bgcOnly},
	{Name: "NITRATE", LongName: "Nitrate concentration", Unit: "micromole/kg", Types: bgcOnly},
	{Name: "NITRATE_QC", LongName: "Quality flag on NITRATE", Unit: "1", Types: bgcOnly},
	{Name: "SILICATE", LongName: "Silicate concentration", Unit: "micromole/kg", Types: bgcOnly},
	{Name: "SILICATE_QC", LongName: "Quality flag on SILICATE", Unit: "1", Types: bgcOnly},
	{Name: "PHOSPHATE", LongName: "Phosphate concentration", Unit: "micromole/kg", Types: bgcOnly},
	{Name: "PHOSPHATE_QC", LongName: "Quality flag on PHOSPHATE", Unit: "1", Types: bgcOnly},
}

// defaultSources is the bundled source registry. The codename is the token
// matched inside the on-disk sub-directory name
// (<id>_<TYPE>_<CODENAME>-<variant>_<date>).
var defaultSources = []Source{
	{Name: "ARGO", Codename: "ARGO", Types: both},
	{Name: "GLODAP", Codename: "GLODAP", Types: both},
	{Name: "SprayGliders", Codename: "SPRAY", Types: phyOnly},
}

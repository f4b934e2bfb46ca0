package pipeline

import (
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

type canonicalParquetRow struct {
	Index        int64   `parquet:"name=index, type=INT64"`
	TSUTCISO     string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ElapsedS     float64 `parquet:"name=elapsed_s, type=DOUBLE"`
	PowerW       float64 `parquet:"name=power_w, type=DOUBLE"`
	SpeedMPS     float64 `parquet:"name=speed_mps, type=DOUBLE"`
	DistanceM    float64 `parquet:"name=distance_m, type=DOUBLE"`
	AltitudeM    float64 `parquet:"name=altitude_m, type=DOUBLE"`
	HRBPM        float64 `parquet:"name=hr_bpm, type=DOUBLE"`
	CadenceRPM   float64 `parquet:"name=cadence_rpm, type=DOUBLE"`
	MoveM        float64 `parquet:"name=move_m, type=DOUBLE"`
	ElevationM   float64 `parquet:"name=elevation_m, type=DOUBLE"`
	Grade        float64 `parquet:"name=grade, type=DOUBLE"`
	HighAltitude bool    `parquet:"name=high_altitude, type=BOOLEAN"`
}

func writeCanonicalParquet(path string, samples []CanonicalSample) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	if err := writeParquetRows(fw, samples); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

func marshalCanonicalParquet(samples []CanonicalSample) ([]byte, error) {
	fw := buffer.NewBufferFile()
	if err := writeParquetRows(fw, samples); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func writeParquetRows(fw source.ParquetFile, samples []CanonicalSample) error {
	pw, err := writer.NewParquetWriter(fw, new(canonicalParquetRow), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, s := range samples {
		row := canonicalParquetRow{
			Index:        int64(s.Index),
			TSUTCISO:     s.TSUTCISO,
			ElapsedS:     s.ElapsedS,
			PowerW:       s.PowerW,
			SpeedMPS:     s.SpeedMPS,
			DistanceM:    s.DistanceM,
			AltitudeM:    s.AltitudeM,
			HRBPM:        s.HRBPM,
			CadenceRPM:   s.CadenceRPM,
			MoveM:        s.MoveM,
			ElevationM:   s.ElevationM,
			Grade:        s.Grade,
			HighAltitude: s.HighAltitude,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	return pw.WriteStop()
}

package master

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/go-ecat/ecat"
)

// ReadSDO reads up to size bytes of the object dictionary entry index:subindex of device id.
func (m *Master) ReadSDO(id uint16, index uint16, subindex uint8, size int) ([]byte, error) {
	if err := m.checkSDO(id); err != nil {
		return nil, err
	}

	data, err := m.engine.ReadObject(id, index, subindex, size)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d object 0x%04x:%02x: %w", ecat.ErrObjectAccess, id, index, subindex, err)
	}

	return data, nil
}

// WriteSDO writes data to the object dictionary entry index:subindex of device id.
func (m *Master) WriteSDO(id uint16, index uint16, subindex uint8, data []byte) error {
	if err := m.checkSDO(id); err != nil {
		return err
	}

	if wkc := m.engine.WriteObject(id, index, subindex, data); wkc <= 0 {
		return fmt.Errorf("%w: device %d object 0x%04x:%02x: wkc=%d", ecat.ErrObjectAccess, id, index, subindex, wkc)
	}

	return nil
}

// ReadSDOValue reads a fixed-size little-endian value from the object dictionary of device id.
func ReadSDOValue[T any](m *Master, id uint16, index uint16, subindex uint8) (T, error) {
	var val T

	size := binary.Size(val)
	if size <= 0 {
		return val, fmt.Errorf("%w: %T is not a fixed-size type", ecat.ErrObjectAccess, val)
	}

	data, err := m.ReadSDO(id, index, subindex, size)
	if err != nil {
		return val, err
	}

	if _, err := binary.Decode(data, binary.LittleEndian, &val); err != nil {
		return val, fmt.Errorf("%w: device %d object 0x%04x:%02x: %w", ecat.ErrObjectAccess, id, index, subindex, err)
	}

	return val, nil
}

// WriteSDOValue writes a fixed-size value little-endian to the object dictionary of device id.
func WriteSDOValue[T any](m *Master, id uint16, index uint16, subindex uint8, val T) error {
	data, err := binary.Append(nil, binary.LittleEndian, val)
	if err != nil {
		return fmt.Errorf("%w: %w", ecat.ErrObjectAccess, err)
	}

	return m.WriteSDO(id, index, subindex, data)
}

func (m *Master) checkSDO(id uint16) error {
	if err := m.checkOpened(); err != nil {
		return err
	}
	if id == 0 || int(id) > m.DeviceCount() {
		return fmt.Errorf("%w: %d", ecat.ErrNoDevice, id)
	}

	return nil
}
